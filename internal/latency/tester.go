package latency

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
)

// Recorder persists latency results.
type Recorder interface {
	RecordLatency(ctx context.Context, latency *models.LatencyTest) error
}

// TestResult holds the outcome for a single node test.
type TestResult struct {
	Node    *models.ServerNode
	Latency *models.LatencyTest
}

// BatchResult holds the outcome of testing multiple nodes.
type BatchResult struct {
	Results   []*TestResult
	Tested    int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// ProgressFunc is called each time a single test completes during batch testing.
type ProgressFunc func(result *TestResult, current, total int)

// TesterConfig holds configuration for the Tester.
type TesterConfig struct {
	Workers  int64
	Timeout  time.Duration
	Strategy Strategy
	Logger   *slog.Logger
}

// Tester orchestrates latency testing.
type Tester struct {
	recorder Recorder
	config   TesterConfig
}

// NewTester creates a new Tester.
func NewTester(recorder Recorder, cfg TesterConfig) *Tester {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Strategy == nil {
		cfg.Strategy = &TCPStrategy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tester{
		recorder: recorder,
		config:   cfg,
	}
}

// ConfigFromSettings reads worker count and timeout from stored settings,
// keeping the defaults for anything missing or malformed.
func ConfigFromSettings(ctx context.Context, store storage.Storage) TesterConfig {
	var cfg TesterConfig
	if v, err := store.GetSetting(ctx, storage.SettingLatencyWorkers); err == nil {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Workers = n
		}
	}
	if v, err := store.GetSetting(ctx, storage.SettingLatencyTimeout); err == nil {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}

// TestSingle tests a single node and records the result.
func (t *Tester) TestSingle(ctx context.Context, node *models.ServerNode) *TestResult {
	result := &TestResult{Node: node}

	testCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	latencyMS, err := t.config.Strategy.Test(testCtx, node)

	latencyTest := &models.LatencyTest{
		NodeID:       node.ID,
		TestStrategy: t.config.Strategy.Name(),
		TestedAt:     time.Now(),
	}

	if err != nil {
		latencyTest.Success = false
		latencyTest.ErrorMessage = err.Error()
	} else {
		latencyTest.Success = true
		latencyTest.LatencyMS = &latencyMS
	}

	// Placeholders without an ID are never persisted.
	if t.recorder != nil && node.ID != 0 {
		if err := t.recorder.RecordLatency(ctx, latencyTest); err != nil {
			t.config.Logger.Warn("failed to record latency", "node", node.Name, "error", err)
		}
	}

	result.Latency = latencyTest
	return result
}

// TestBatch tests multiple nodes concurrently using a semaphore-based worker pool.
func (t *Tester) TestBatch(ctx context.Context, nodes []*models.ServerNode, progress ProgressFunc) *BatchResult {
	startTime := time.Now()

	batch := &BatchResult{}
	results := make([]*TestResult, len(nodes))
	var mu sync.Mutex
	var completed int

	sem := semaphore.NewWeighted(t.config.Workers)
	var wg sync.WaitGroup

	for i, node := range nodes {
		wg.Add(1)
		go func(idx int, n *models.ServerNode) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			result := t.TestSingle(ctx, n)
			results[idx] = result

			mu.Lock()
			completed++
			current := completed
			if result.Latency.Success {
				batch.Succeeded++
			} else {
				batch.Failed++
			}
			mu.Unlock()

			if progress != nil {
				progress(result, current, len(nodes))
			}
		}(i, node)
	}

	wg.Wait()

	for _, r := range results {
		if r != nil {
			batch.Results = append(batch.Results, r)
			batch.Tested++
		}
	}

	// Successful by latency ascending, failures at end
	sort.SliceStable(batch.Results, func(i, j int) bool {
		ri, rj := batch.Results[i].Latency, batch.Results[j].Latency
		if ri.Success != rj.Success {
			return ri.Success
		}
		if ri.Success {
			return *ri.LatencyMS < *rj.LatencyMS
		}
		return false
	})

	batch.Duration = time.Since(startTime)
	return batch
}
