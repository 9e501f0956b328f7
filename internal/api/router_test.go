package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grokify/mogo/log/slogutil"

	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/storage/models"
	"hunter/internal/storage/sqlite"
)

// host fakes the OS side of a session: one trojan-go slot and a proxy flag.
type host struct {
	mu      sync.Mutex
	proc    *types.ProcessState
	proxyOn bool
	pid     int
	killed  []int
}

func (h *host) Inspect(ctx context.Context) (*types.ProcessState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return nil, nil
	}
	cp := *h.proc
	return &cp, nil
}

func (h *host) Start(ctx context.Context, node *models.ServerNode, cfg *models.Configuration) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pid++
	n := *node
	h.proc = types.Managed(h.pid, &n)
	return h.pid, nil
}

func (h *host) Terminate(ctx context.Context, pid int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = append(h.killed, pid)
	if h.proc != nil && h.proc.PID == pid {
		h.proc = nil
	}
	return nil
}

func (h *host) Enabled(ctx context.Context) (bool, error) { return h.proxyOn, nil }

func (h *host) Enable(ctx context.Context, pac string) error {
	h.proxyOn = true
	return nil
}

func (h *host) Disable(ctx context.Context) error {
	h.proxyOn = false
	return nil
}

func (h *host) Probe(ctx context.Context, addr string, port int) (time.Duration, error) {
	return 42 * time.Millisecond, nil
}

type fixture struct {
	engine  *gin.Engine
	host    *host
	aborted int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "hunter.db"))
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &host{pid: 99}
	ctrl := core.NewController(core.Deps{
		Inspector:  h,
		Spawner:    h,
		Terminator: h,
		Store:      db,
		Daemon:     db,
		Proxy:      h,
		Prober:     h,
		Prompter: types.PrompterFunc(func(ctx context.Context, p types.Prompt) (bool, error) {
			t.Errorf("default prompter used for %q", p.Title)
			return false, nil
		}),
		Logger: slogutil.Null(),
		Retry:  &core.RetryPolicy{},
	})

	f := &fixture{host: h}
	f.engine = NewRouter(ctrl, Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics\n")) }),
		OnAbort: func() { f.aborted++ },
		Logger:  slogutil.Null(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) addNode(t *testing.T, name, addr string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/nodes", map[string]any{"name": name, "addr": addr, "password": "p"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /nodes status = %d, body=%s", rec.Code, rec.Body.String())
	}
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) types.State {
	t.Helper()
	var st types.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, rec.Body.String())
	}
	return st
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Fatalf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCreateAndListNodes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addNode(t, "n1", "1.2.3.4")

	rec := f.do(t, http.MethodGet, "/nodes", nil)
	var payload struct {
		Nodes []types.NodeView `json:"nodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode nodes: %v", err)
	}
	if len(payload.Nodes) != 1 || payload.Nodes[0].Name != "n1" || payload.Nodes[0].Port != models.DefaultNodePort {
		t.Fatalf("unexpected nodes: %+v", payload.Nodes)
	}

	rec = f.do(t, http.MethodPost, "/nodes", map[string]any{"name": "n1", "addr": "5.6.7.8", "password": "p"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate POST /nodes status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/nodes", map[string]any{"name": "n2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete POST /nodes status = %d", rec.Code)
	}
}

func TestUpdateNodeOutOfRange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/nodes/5", map[string]any{"name": "n1", "addr": "1.2.3.4", "password": "p"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("PUT /nodes/5 status = %d", rec.Code)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addNode(t, "n1", "1.2.3.4")

	rec := f.do(t, http.MethodDelete, "/nodes/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	var resp struct {
		Deleted bool          `json:"deleted"`
		Prompt  *types.Prompt `json:"confirmation_required"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Deleted || resp.Prompt == nil || !strings.Contains(resp.Prompt.Title+resp.Prompt.Message, "n1") {
		t.Fatalf("expected unconfirmed delete naming n1, got %s", rec.Body.String())
	}
	if st := decodeState(t, f.do(t, http.MethodGet, "/state", nil)); len(st.Nodes) != 1 {
		t.Fatalf("expected node kept, got %d nodes", len(st.Nodes))
	}

	rec = f.do(t, http.MethodDelete, "/nodes/0?confirm=true", nil)
	if !strings.Contains(rec.Body.String(), `"deleted":true`) {
		t.Fatalf("confirmed DELETE = %s", rec.Body.String())
	}
	if st := decodeState(t, f.do(t, http.MethodGet, "/state", nil)); len(st.Nodes) != 0 {
		t.Fatalf("expected node deleted, got %d nodes", len(st.Nodes))
	}
}

func TestConcurrentCreatesAllAppend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	names := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			rec := f.do(t, http.MethodPost, "/nodes", map[string]any{"name": name, "addr": name + ".example.com", "password": "p"})
			if rec.Code != http.StatusCreated {
				t.Errorf("POST /nodes %s status = %d", name, rec.Code)
			}
		}(name)
	}
	wg.Wait()

	if st := decodeState(t, f.do(t, http.MethodGet, "/state", nil)); len(st.Nodes) != len(names) {
		t.Fatalf("expected %d nodes, got %+v", len(names), st.Nodes)
	}
}

func TestRunningNodeCannotBeChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addNode(t, "a", "1.1.1.1")
	if st := decodeState(t, f.do(t, http.MethodPost, "/nodes/a/enable", nil)); st.Node != "a" {
		t.Fatalf("after enable a: %+v", st)
	}

	if rec := f.do(t, http.MethodDelete, "/nodes/0?confirm=true", nil); rec.Code != http.StatusConflict {
		t.Fatalf("DELETE running node status = %d, body=%s", rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodPut, "/nodes/0", map[string]any{"name": "a", "addr": "9.9.9.9", "password": "p"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("PUT running node status = %d, body=%s", rec.Code, rec.Body.String())
	}

	st := decodeState(t, f.do(t, http.MethodGet, "/state", nil))
	if st.Phase != types.PhaseRunning || len(st.Nodes) != 1 || st.Nodes[0].Addr != "1.1.1.1" {
		t.Fatalf("expected running node untouched, got %+v", st)
	}
}

func TestEnableSwitchDisable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addNode(t, "a", "1.1.1.1")
	f.addNode(t, "b", "2.2.2.2")

	st := decodeState(t, f.do(t, http.MethodPost, "/nodes/a/enable", nil))
	if st.Phase != types.PhaseRunning || st.Node != "a" || !st.ProxyEnabled {
		t.Fatalf("after enable a: %+v", st)
	}

	st = decodeState(t, f.do(t, http.MethodPost, "/nodes/b/enable", nil))
	if st.Node != "b" || st.UsingCount() != 1 {
		t.Fatalf("after switch to b: %+v", st)
	}
	if len(f.host.killed) != 1 {
		t.Fatalf("expected previous process terminated once, got %v", f.host.killed)
	}

	st = decodeState(t, f.do(t, http.MethodPost, "/disable", nil))
	if st.Phase != types.PhaseIdle || st.ProxyEnabled || st.UsingCount() != 0 {
		t.Fatalf("after disable: %+v", st)
	}

	if rec := f.do(t, http.MethodPost, "/nodes/ghost/enable", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("enable ghost status = %d", rec.Code)
	}
}

func TestProxyRequiresSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/proxy", map[string]any{"enabled": true})
	if rec.Code != http.StatusConflict {
		t.Fatalf("POST /proxy status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/proxy", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /proxy without body status = %d", rec.Code)
	}
}

func TestConflictAbortShutsDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addNode(t, "n1", "1.2.3.4")
	f.host.proc = types.Foreign(100)

	rec := f.do(t, http.MethodPost, "/nodes/n1/enable", nil)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"aborted":true`) {
		t.Fatalf("expected 409 abort, got %d %s", rec.Code, rec.Body.String())
	}
	if f.aborted != 1 {
		t.Fatalf("expected OnAbort called once, got %d", f.aborted)
	}
	if len(f.host.killed) != 0 {
		t.Fatalf("expected no terminate, got %v", f.host.killed)
	}

	rec = f.do(t, http.MethodPost, "/nodes/n1/enable?confirm=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed enable status = %d %s", rec.Code, rec.Body.String())
	}
	if len(f.host.killed) != 1 || f.host.killed[0] != 100 {
		t.Fatalf("expected terminate(100), got %v", f.host.killed)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/probe", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"latency_ms":42`) {
		t.Fatalf("POST /probe = %d %s", rec.Code, rec.Body.String())
	}
}
