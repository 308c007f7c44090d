package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/compile"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/publish"
)

var testSource = models.SourceRef{Name: "bigquery-source", Kind: "bigquery", Project: "acme-analytics"}

type fakeReader struct {
	defs []models.QueryDefinition
	err  error
}

func (f *fakeReader) FetchEnabled(ctx context.Context) ([]models.QueryDefinition, error) {
	return f.defs, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	versions int
	current  publish.VersionHandle
	err      error

	// when set, Publish blocks until the channel is closed
	block chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte) (publish.VersionHandle, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.versions++
	f.current = publish.VersionHandle("fake:" + string(rune('0'+f.versions)))
	return f.current, nil
}

func (f *fakePublisher) Current(ctx context.Context) (publish.VersionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func validDef(name, category string) models.QueryDefinition {
	return models.QueryDefinition{
		Name:      name,
		Category:  category,
		Statement: "SELECT 1",
		Enabled:   true,
	}
}

func TestRunSuccess(t *testing.T) {
	reader := &fakeReader{defs: []models.QueryDefinition{
		validDef("daily_sales", "sales"),
		validDef("weekly_sales", "sales"),
		validDef("error_rate", "ops"),
	}}
	pub := &fakePublisher{}
	orch := New(reader, pub, testSource, zap.NewNop())

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("expected non-empty run id")
	}
	if report.Tools != 3 {
		t.Errorf("tools = %d, want 3", report.Tools)
	}
	if report.Toolsets != 2 {
		t.Errorf("toolsets = %d, want 2", report.Toolsets)
	}
	if report.NoOp {
		t.Error("first run should not be a no-op")
	}
	if report.Version == "" || report.Digest == "" {
		t.Errorf("missing version/digest in report: %+v", report)
	}
	if got := orch.LastRun(); got == nil || got.RunID != report.RunID {
		t.Errorf("LastRun = %+v, want report %q", got, report.RunID)
	}
	if orch.State() != StateIdle {
		t.Errorf("state after run = %q, want idle", orch.State())
	}
}

func TestRunRejectedSnapshotDoesNotPublish(t *testing.T) {
	reader := &fakeReader{defs: []models.QueryDefinition{
		validDef("good_query", "sales"),
		{Name: "", Category: "sales", Statement: "SELECT 1", Enabled: true},
	}}
	pub := &fakePublisher{}
	orch := New(reader, pub, testSource, zap.NewNop())

	_, err := orch.Run(context.Background())
	var rejected *compile.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Run error = %v, want RejectedError", err)
	}
	if pub.versions != 0 {
		t.Errorf("publisher called %d times on rejected snapshot", pub.versions)
	}
	if orch.LastRun() != nil {
		t.Error("rejected run must not be recorded as last run")
	}
}

func TestRunStoreError(t *testing.T) {
	cause := errors.New("database is locked")
	orch := New(&fakeReader{err: cause}, &fakePublisher{}, testSource, zap.NewNop())

	_, err := orch.Run(context.Background())
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Run error = %v, want StoreError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("StoreError should wrap the cause, got %v", err)
	}
}

func TestRunPublishErrorKeepsPreviousVersion(t *testing.T) {
	reader := &fakeReader{defs: []models.QueryDefinition{validDef("daily_sales", "sales")}}
	pub := &fakePublisher{}
	orch := New(reader, pub, testSource, zap.NewNop())

	first, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// change the snapshot so the next run is not a no-op, then fail the publish
	reader.defs = append(reader.defs, validDef("weekly_sales", "sales"))
	pub.err = errors.New("backend down")

	_, err = orch.Run(context.Background())
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("Run error = %v, want PublishError", err)
	}

	got, err := orch.LastVersion(context.Background())
	if err != nil {
		t.Fatalf("LastVersion: %v", err)
	}
	if got != first.Version {
		t.Errorf("LastVersion = %q, want previous version %q", got, first.Version)
	}
}

func TestRunConcurrentRejected(t *testing.T) {
	reader := &fakeReader{defs: []models.QueryDefinition{validDef("daily_sales", "sales")}}
	pub := &fakePublisher{block: make(chan struct{})}
	orch := New(reader, pub, testSource, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background())
		done <- err
	}()

	// wait for the first run to reach the publisher
	deadline := time.After(2 * time.Second)
	for orch.State() != StatePublishing {
		select {
		case <-deadline:
			t.Fatal("first run never reached publishing state")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := orch.Run(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Run error = %v, want ErrInProgress", err)
	}

	close(pub.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if orch.State() != StateIdle {
		t.Errorf("state after run = %q, want idle", orch.State())
	}
}

func TestRunNoOpOnIdenticalSnapshot(t *testing.T) {
	reader := &fakeReader{defs: []models.QueryDefinition{validDef("daily_sales", "sales")}}
	pub := &fakePublisher{}
	orch := New(reader, pub, testSource, zap.NewNop())

	first, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.NoOp {
		t.Error("second run with identical snapshot should be flagged as a no-op")
	}
	if second.Digest != first.Digest {
		t.Errorf("no-op digest = %q, want %q", second.Digest, first.Digest)
	}
	// last published wins: the artifact is written again even when unchanged
	if pub.versions != 2 {
		t.Errorf("publisher called %d times, want 2", pub.versions)
	}

	// changing the snapshot clears the flag
	reader.defs = append(reader.defs, validDef("weekly_sales", "sales"))
	third, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third.NoOp {
		t.Error("changed snapshot must not be a no-op")
	}
}

func TestLastVersionFallsBackToBackend(t *testing.T) {
	pub := &fakePublisher{current: "fake:7"}
	orch := New(&fakeReader{}, pub, testSource, zap.NewNop())

	got, err := orch.LastVersion(context.Background())
	if err != nil {
		t.Fatalf("LastVersion: %v", err)
	}
	if got != "fake:7" {
		t.Errorf("LastVersion = %q, want backend current", got)
	}
}
