// Package batch runs the reconciliation engine over every document in a
// directory and commits fingerprints only when the whole batch succeeded.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/szaher/config-manager/internal/apply"
	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/events"
	"github.com/szaher/config-manager/internal/state"
	"github.com/szaher/config-manager/internal/telemetry"
)

// ErrNoDocuments is returned when the directory holds no documents.
var ErrNoDocuments = errors.New("no documents found")

// Applier reconciles a single document against a fingerprint mapping.
type Applier interface {
	Apply(ctx context.Context, path, key string, store state.Fingerprints) apply.Result
}

// Report is the outcome of one batch. Committed is true only if every
// result succeeded and the store was persisted.
type Report struct {
	RunID     string
	Results   []apply.Result
	Committed bool
	CommitErr error
	Duration  time.Duration
}

// Succeeded counts successful results.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded {
			n++
		}
	}
	return n
}

// Failed counts failed results.
func (r *Report) Failed() int { return len(r.Results) - r.Succeeded() }

// OK reports whether every document succeeded and was committed.
func (r *Report) OK() bool { return r.Committed && r.Failed() == 0 }

// Config wires an Orchestrator.
type Config struct {
	Engine          Applier
	Backend         state.Backend
	Extensions      []string
	Emitter         events.Emitter
	Metrics         *telemetry.Metrics
	MetricsTextfile string
	Logger          *slog.Logger
}

// Orchestrator owns the in-memory fingerprint mapping for the life of
// the process. Runs are serialized.
type Orchestrator struct {
	mu      sync.Mutex
	store   state.Fingerprints
	group   singleflight.Group
	engine  Applier
	backend state.Backend
	exts    []string

	emitter  events.Emitter
	metrics  *telemetry.Metrics
	textfile string
	logger   *slog.Logger
}

// New creates an Orchestrator and loads the fingerprint store once.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		engine:   cfg.Engine,
		backend:  cfg.Backend,
		exts:     cfg.Extensions,
		emitter:  cfg.Emitter,
		metrics:  cfg.Metrics,
		textfile: cfg.MetricsTextfile,
		logger:   cfg.Logger,
	}
	if o.emitter == nil {
		o.emitter = events.NoopEmitter{}
	}
	if o.logger == nil {
		o.logger = telemetry.DiscardLogger()
	}
	o.store = cfg.Backend.Load()
	return o
}

// Store returns a copy of the current in-memory mapping.
func (o *Orchestrator) Store() state.Fingerprints {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Clone()
}

// Discover lists the documents of dir using the configured extensions.
func (o *Orchestrator) Discover(dir string) ([]document.Ref, error) {
	refs, err := document.Discover(dir, o.exts)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}
	return refs, nil
}

// Run discovers and reconciles every document in dir.
func (o *Orchestrator) Run(ctx context.Context, dir string) (*Report, error) {
	refs, err := o.Discover(dir)
	if err != nil {
		return nil, err
	}
	return o.RunRefs(ctx, refs), nil
}

// RunShared is Run with concurrent callers for the same dir collapsed
// into a single batch. shared reports whether the report was produced
// for another caller.
func (o *Orchestrator) RunShared(ctx context.Context, dir string) (*Report, bool, error) {
	v, err, shared := o.group.Do(dir, func() (interface{}, error) {
		return o.Run(ctx, dir)
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*Report), shared, nil
}

// RunRefs reconciles refs in order. If ctx is cancelled between
// documents, the remaining documents fail without being attempted and
// nothing is committed.
func (o *Orchestrator) RunRefs(ctx context.Context, refs []document.Ref) *Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	runID := telemetry.RunID(ctx)
	if runID == "" {
		runID = telemetry.NewRunID()
		ctx = telemetry.WithRunID(ctx, runID)
	}
	logger := telemetry.RunLogger(o.logger, ctx)
	start := time.Now()
	report := &Report{RunID: runID}

	logger.Info("starting batch", "documents", len(refs))
	o.emitter.Emit(events.New(events.BatchStarted, runID).WithData("documents", len(refs)))

	pending := state.Fingerprints{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, apply.Result{
				Path:    ref.Path,
				Key:     ref.Key,
				State:   apply.StateFailed,
				Err:     err,
				Message: "interrupted before apply",
			})
			continue
		}
		res := o.engine.Apply(ctx, ref.Path, ref.Key, o.store)
		if res.Succeeded {
			pending[ref.Key] = res.Fingerprint
		}
		report.Results = append(report.Results, res)
	}

	if report.Failed() == 0 {
		merged := o.store.Merge(pending)
		if err := o.backend.Commit(merged); err != nil {
			report.CommitErr = err
			for i := range report.Results {
				report.Results[i].Succeeded = false
				report.Results[i].State = apply.StateFailed
				report.Results[i].Err = err
				report.Results[i].Message = "failed to save state: " + err.Error()
			}
			logger.Error("failed to save final state", "error", err)
			o.emitter.Emit(events.New(events.BatchNotCommitted, runID).
				WithData("reason", "commit failed").
				WithData("error", err.Error()))
		} else {
			o.store = merged
			report.Committed = true
			logger.Info("all documents successful, state updated", "recorded", len(pending))
			o.emitter.Emit(events.New(events.BatchCommitted, runID).WithData("documents", len(pending)))
		}
	} else {
		logger.Warn("some documents failed, state not updated", "failed", report.Failed())
		o.emitter.Emit(events.New(events.BatchNotCommitted, runID).
			WithData("reason", "document failures").
			WithData("failed", report.Failed()))
	}

	report.Duration = time.Since(start)
	o.metrics.RecordBatch(report.Duration, report.Committed)
	if err := o.metrics.WriteTextfile(o.textfile); err != nil {
		logger.Warn("failed to write metrics textfile", "path", o.textfile, "error", err)
	}
	return report
}
