package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	pkgerrors "hunter/pkg/errors"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecordTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}

	m.RecordTransition(ctx, "enable", nil)
	m.RecordTransition(ctx, "enable", &pkgerrors.ConflictError{Kind: pkgerrors.ConflictForeign, PID: 100, Err: pkgerrors.ErrAborted})
	m.RecordTransition(ctx, "disable", fmt.Errorf("terminate: %w", errors.New("boom")))
	m.RecordProbe(ctx, 120*time.Millisecond, nil)
	m.RecordProbe(ctx, 0, pkgerrors.ErrProbeFailed)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	if got := sumOf(t, rm, "hunter.transitions"); got != 3 {
		t.Fatalf("expected 3 transitions, got %d", got)
	}
	if got := sumOf(t, rm, "hunter.conflict.aborts"); got != 1 {
		t.Fatalf("expected 1 abort, got %d", got)
	}
	if got := sumOf(t, rm, "hunter.transition.failures"); got != 1 {
		t.Fatalf("expected 1 failure, got %d", got)
	}
	if got := sumOf(t, rm, "hunter.probe.failures"); got != 1 {
		t.Fatalf("expected 1 probe failure, got %d", got)
	}
}

func TestProviderServesMetrics(t *testing.T) {
	p, err := NewProvider(nil)
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	defer p.Shutdown(context.Background())

	p.Metrics.RecordTransition(context.Background(), "enable", nil)

	rec := httptest.NewRecorder()
	p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
