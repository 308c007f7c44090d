package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/compile"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/publish"
)

// State names the phase a run is in. The value moves strictly forward through
// a run and returns to StateIdle whether the run succeeded or failed.
type State string

const (
	StateIdle       State = "idle"
	StateReading    State = "reading"
	StateValidating State = "validating"
	StateCompiling  State = "compiling"
	StatePublishing State = "publishing"
)

// Reader is the one registry operation the pipeline needs: a snapshot of the
// enabled definitions at a moment in time.
type Reader interface {
	FetchEnabled(ctx context.Context) ([]models.QueryDefinition, error)
}

// Report summarizes a completed run.
type Report struct {
	RunID      string                `json:"run_id"`
	Version    publish.VersionHandle `json:"version"`
	Digest     string                `json:"digest"`
	Tools      int                   `json:"tools"`
	Toolsets   int                   `json:"toolsets"`
	NoOp       bool                  `json:"no_op"`
	DurationMS int64                 `json:"duration_ms"`
}

// Orchestrator drives the read -> validate -> compile -> publish pipeline.
// At most one run executes at a time; a second trigger fails fast with
// ErrInProgress.
type Orchestrator struct {
	registry  Reader
	publisher publish.Publisher
	source    models.SourceRef
	logger    *zap.Logger

	gate sync.Mutex // held for the duration of a run

	mu          sync.Mutex // guards the fields below
	state       State
	lastDigest  string
	lastVersion publish.VersionHandle
	lastRun     *Report
}

func New(registry Reader, publisher publish.Publisher, source models.SourceRef, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  registry,
		publisher: publisher,
		source:    source,
		logger:    logger,
		state:     StateIdle,
	}
}

// Run executes one full pipeline pass. It returns ErrInProgress without
// blocking if another run holds the gate. On validation failure it returns a
// *compile.RejectedError carrying every violation; nothing is published and
// the previously published artifact is untouched.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if !o.gate.TryLock() {
		return nil, ErrInProgress
	}
	defer o.gate.Unlock()
	defer o.setState(StateIdle)

	start := time.Now()
	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))

	o.setState(StateReading)
	snapshot, err := o.registry.FetchEnabled(ctx)
	if err != nil {
		log.Error("registry snapshot failed", zap.Error(err))
		return nil, &StoreError{Err: err}
	}
	log.Debug("snapshot read", zap.Int("definitions", len(snapshot)))

	o.setState(StateValidating)
	set, err := compile.Validate(snapshot)
	if err != nil {
		log.Warn("snapshot rejected", zap.Error(err))
		return nil, err
	}

	o.setState(StateCompiling)
	doc := compile.Compile(set, o.source)
	data, err := compile.Marshal(doc)
	if err != nil {
		return nil, err
	}
	digest := documentDigest(data)

	report := &Report{
		RunID:    runID,
		Digest:   digest,
		Tools:    len(doc.Tools),
		Toolsets: len(doc.Toolsets),
	}

	// digest match against the previous successful run marks the result a
	// no-op for callers; last published wins, so the publish still happens
	o.mu.Lock()
	report.NoOp = o.lastDigest != "" && o.lastDigest == digest
	o.mu.Unlock()

	o.setState(StatePublishing)
	version, err := o.publisher.Publish(ctx, data)
	if err != nil {
		log.Error("publish failed", zap.Error(err))
		return nil, &PublishError{Err: err}
	}

	report.Version = version
	report.DurationMS = time.Since(start).Milliseconds()
	o.finishRun(report)
	log.Info("document published",
		zap.String("version", string(version)),
		zap.String("digest", digest),
		zap.Int("tools", report.Tools),
		zap.Int("toolsets", report.Toolsets),
		zap.Bool("no_op", report.NoOp))
	return report, nil
}

// State reports the phase of the run in flight, or StateIdle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastRun returns the report of the most recent successful run, or nil.
func (o *Orchestrator) LastRun() *Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// LastVersion returns the version most recently published by this process,
// falling back to the backend's current version when no run has completed yet.
func (o *Orchestrator) LastVersion(ctx context.Context) (publish.VersionHandle, error) {
	o.mu.Lock()
	v := o.lastVersion
	o.mu.Unlock()
	if v != "" {
		return v, nil
	}
	return o.publisher.Current(ctx)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) finishRun(r *Report) {
	o.mu.Lock()
	o.lastDigest = r.Digest
	if r.Version != "" {
		o.lastVersion = r.Version
	}
	o.lastRun = r
	o.mu.Unlock()
}

func documentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
