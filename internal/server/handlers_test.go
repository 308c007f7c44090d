package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/config"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/orchestrator"
	"github.com/hyperjump/kumitate/internal/publish"
	"github.com/hyperjump/kumitate/internal/registry"
)

var testSource = models.SourceRef{Name: "bigquery-source", Kind: "bigquery", Project: "acme-analytics"}

// blockingPublisher holds Publish open until released, so tests can observe a
// compile in flight.
type blockingPublisher struct {
	mu      sync.Mutex
	release chan struct{}
	current publish.VersionHandle
}

func (p *blockingPublisher) Publish(ctx context.Context, data []byte) (publish.VersionHandle, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = "test:1"
	return p.current, nil
}

func (p *blockingPublisher) Current(ctx context.Context) (publish.VersionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func newTestServer(t *testing.T) (*Server, registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.NewSQLiteRegistry(filepath.Join(dir, "registry.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	pub, err := publish.NewFilePublisher(filepath.Join(dir, "tools.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(reg, pub, testSource, zap.NewNop())
	srv := NewServer(reg, orch, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop())
	return srv, reg
}

func createDefinition(t *testing.T, reg registry.Registry, def models.QueryDefinition) {
	t.Helper()
	if err := reg.Create(context.Background(), &def); err != nil {
		t.Fatal(err)
	}
}

func TestHandleCompile(t *testing.T) {
	srv, reg := newTestServer(t)
	createDefinition(t, reg, models.QueryDefinition{
		Name: "daily_sales", Category: "sales", Statement: "SELECT 1", Enabled: true,
	})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/compile", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var report orchestrator.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Tools != 1 || report.Version == "" || report.Digest == "" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestHandleCompileRejected(t *testing.T) {
	srv, reg := newTestServer(t)
	createDefinition(t, reg, models.QueryDefinition{
		Name: "bad_query", Category: "sales", Statement: "", Enabled: true,
	})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/compile", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", w.Code)
	}
	var out struct {
		Error      string `json:"error"`
		Violations []struct {
			Definition string `json:"definition"`
			Reason     string `json:"reason"`
		} `json:"violations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Violations) != 1 || out.Violations[0].Definition != "bad_query" {
		t.Errorf("violations = %+v", out.Violations)
	}
}

func TestHandleCompileConflict(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.NewSQLiteRegistry(filepath.Join(dir, "registry.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	createDefinition(t, reg, models.QueryDefinition{
		Name: "daily_sales", Category: "sales", Statement: "SELECT 1", Enabled: true,
	})

	pub := &blockingPublisher{release: make(chan struct{})}
	orch := orchestrator.New(reg, pub, testSource, zap.NewNop())
	srv := NewServer(reg, orch, &config.ServerConfig{Port: 8080}, zap.NewNop())
	router := srv.Router()

	first := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/compile", nil))
		first <- w.Code
	}()

	// wait for the first compile to block inside the publisher
	deadline := time.After(2 * time.Second)
	for orch.State() != orchestrator.StatePublishing {
		select {
		case <-deadline:
			t.Fatal("first compile never reached publishing state")
		case <-time.After(time.Millisecond):
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/compile", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("concurrent compile status: got %d, want 409", w.Code)
	}

	close(pub.release)
	if code := <-first; code != http.StatusOK {
		t.Errorf("first compile status: got %d, want 200", code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, reg := newTestServer(t)
	createDefinition(t, reg, models.QueryDefinition{
		Name: "daily_sales", Category: "sales", Statement: "SELECT 1", Enabled: true,
	})
	createDefinition(t, reg, models.QueryDefinition{
		Name: "old_report", Category: "sales", Statement: "SELECT 2", Enabled: false,
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Registry registry.Stats `json:"registry"`
		State    string         `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Registry.Total != 2 || out.Registry.Enabled != 1 {
		t.Errorf("registry stats = %+v", out.Registry)
	}
	if out.State != string(orchestrator.StateIdle) {
		t.Errorf("state = %q, want idle", out.State)
	}
}

func TestDefinitionCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(models.QueryDefinition{
		Name: "daily_sales", Category: "sales", Statement: "SELECT 1", Enabled: true,
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/definitions", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status: got %d, body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/definitions/daily_sales", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var def models.QueryDefinition
	if err := json.NewDecoder(w.Body).Decode(&def); err != nil {
		t.Fatal(err)
	}
	if def.Statement != "SELECT 1" {
		t.Errorf("statement = %q", def.Statement)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch,
		"/api/v1/definitions/daily_sales/enabled", bytes.NewReader([]byte(`{"enabled":false}`))))
	if w.Code != http.StatusOK {
		t.Fatalf("set enabled status: got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/definitions/daily_sales", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/definitions/daily_sales", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status: got %d, want 404", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
