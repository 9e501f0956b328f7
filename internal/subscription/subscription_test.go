package subscription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grokify/mogo/log/slogutil"
	"hunter/internal/core"
	"hunter/internal/storage/models"
	"hunter/internal/storage/sqlite"
	pkgerrors "hunter/pkg/errors"
)

const links = "trojan://a@a.example.com:443#a\nvmess://eyJ2IjoiMiJ9\ntrojan://b@b.example.com:8443#b\n"

// appender writes nodes straight to the store.
type appender struct {
	db *sqlite.DB
}

func (a appender) AddOrUpdate(ctx context.Context, node *models.ServerNode, index int) error {
	if index != core.AppendIndex {
		return fmt.Errorf("expected append index, got %d", index)
	}
	return a.db.AddNode(ctx, node)
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "hunter.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetcherConfig{UserAgent: "test", Timeout: 2 * time.Second, MaxRetries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewFetcher() error: %v", err)
	}
	return f
}

func TestDecode(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"plain":  links,
		"base64": base64.StdEncoding.EncodeToString([]byte(links)),
		"raw":    base64.RawURLEncoding.EncodeToString([]byte(links)),
	} {
		uris, err := Decode([]byte(content))
		if err != nil {
			t.Fatalf("%s: Decode() error: %v", name, err)
		}
		if len(uris) != 3 {
			t.Fatalf("%s: expected 3 links, got %d", name, len(uris))
		}
	}

	if _, err := Decode([]byte("  \n")); !errors.Is(err, pkgerrors.ErrSubscriptionEmpty) {
		t.Fatalf("expected ErrSubscriptionEmpty, got %v", err)
	}
	if _, err := Decode([]byte("hello world\n")); !errors.Is(err, pkgerrors.ErrSubscriptionEmpty) {
		t.Fatalf("expected ErrSubscriptionEmpty for text without links, got %v", err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("User-Agent") != "test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(links))
	}))
	defer srv.Close()

	body, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(body) != links || calls.Load() != 2 {
		t.Fatalf("expected content on second attempt, got %d calls", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, pkgerrors.ErrSubscriptionFetchFailed) {
		t.Fatalf("expected ErrSubscriptionFetchFailed, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected HTTPError 404 in chain, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestImportFromURLSkipsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	if err := db.AddNode(ctx, &models.ServerNode{Name: "a", Addr: "a.example.com", Port: 443, Password: "a"}); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(base64.StdEncoding.EncodeToString([]byte(links))))
	}))
	defer srv.Close()

	imp := NewImporter(appender{db}, testFetcher(t), slogutil.Null())
	res, err := imp.Import(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Total != 3 || res.Added != 1 || res.Duplicates != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	nodes, err := db.GetNodes(ctx)
	if err != nil {
		t.Fatalf("GetNodes() error: %v", err)
	}
	if len(nodes) != 2 || nodes[1].Name != "b" || nodes[1].Port != 8443 {
		t.Fatalf("expected b appended, got %d nodes", len(nodes))
	}
}

func TestImportFromFileWithoutTrojanLinks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("vless://id@host:443\n", 2)), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	db := newTestDB(t)
	imp := NewImporter(appender{db}, nil, slogutil.Null())
	res, err := imp.Import(context.Background(), path)
	if !errors.Is(err, pkgerrors.ErrSubscriptionEmpty) {
		t.Fatalf("expected ErrSubscriptionEmpty, got %v", err)
	}
	if res == nil || res.Skipped != 2 {
		t.Fatalf("expected two skipped links, got %+v", res)
	}

	if _, err := imp.Import(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
