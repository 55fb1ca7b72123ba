// Package apply implements the per-document reconciliation engine: it
// detects change, parses the document and converges each directive in
// phase order, stopping at the first failure.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/events"
	"github.com/szaher/config-manager/internal/executor"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/fingerprint"
	"github.com/szaher/config-manager/internal/host"
	"github.com/szaher/config-manager/internal/state"
	"github.com/szaher/config-manager/internal/telemetry"
	"github.com/szaher/config-manager/internal/validate"
)

// DocState is the terminal or intermediate state of one document.
type DocState string

const (
	StateUnchanged DocState = "unchanged"
	StateApplying  DocState = "applying"
	StateApplied   DocState = "applied"
	StateSkipped   DocState = "skipped"
	StateFailed    DocState = "failed"
)

// IOError reports a local filesystem failure while converging a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StateChecker answers whether a package or file is already converged.
type StateChecker interface {
	PackageInstalled(ctx context.Context, name string) bool
	FileMatches(f document.FileState) bool
}

// Result is the outcome of reconciling one document. Fingerprint is
// only meaningful when Succeeded is true.
type Result struct {
	Path        string
	Key         string
	State       DocState
	Succeeded   bool
	Fingerprint string
	Applied     int
	Message     string
	Err         error
}

// Config wires an Engine to its collaborators.
type Config struct {
	Executor   executor.Executor
	Checker    StateChecker
	Packages   host.PackageManager
	Services   host.ServiceManager
	Facts      expr.Facts
	ScratchDir string
	Emitter    events.Emitter
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Engine reconciles documents one at a time. It holds no fingerprint
// state of its own; the caller passes the mapping to every call.
type Engine struct {
	exec       executor.Executor
	checker    StateChecker
	packages   host.PackageManager
	services   host.ServiceManager
	facts      expr.Facts
	scratchDir string
	emitter    events.Emitter
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// New creates an Engine. Executor, Checker, Packages and Services are
// required.
func New(cfg Config) *Engine {
	e := &Engine{
		exec:       cfg.Executor,
		checker:    cfg.Checker,
		packages:   cfg.Packages,
		services:   cfg.Services,
		facts:      cfg.Facts,
		scratchDir: cfg.ScratchDir,
		emitter:    cfg.Emitter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if e.emitter == nil {
		e.emitter = events.NoopEmitter{}
	}
	if e.logger == nil {
		e.logger = telemetry.DiscardLogger()
	}
	if e.scratchDir == "" {
		e.scratchDir = os.TempDir()
	}
	return e
}

// Apply reconciles the document at path, identified by key in store.
// It never mutates store.
func (e *Engine) Apply(ctx context.Context, path, key string, store state.Fingerprints) Result {
	runID := telemetry.RunID(ctx)
	logger := telemetry.RunLogger(e.logger, ctx).With("document", key)
	res := Result{Path: path, Key: key}

	changed, fp := fingerprint.Detector{Logger: logger}.HasChanged(path, key, store)
	if !changed {
		res.State = StateUnchanged
		res.Succeeded = true
		res.Fingerprint = fp
		res.Message = "unchanged"
		e.emitter.Emit(events.New(events.DocumentUnchanged, runID).WithData("document", key))
		e.metrics.RecordDocument(string(StateUnchanged))
		return res
	}

	doc, raw, err := Load(path)
	if raw != nil {
		// The recorded fingerprint is always that of the bytes actually applied.
		res.Fingerprint = fingerprint.Sum(raw)
	}
	if err != nil {
		return e.fail(res, runID, logger, err)
	}
	doc.Key = key

	ok, err := expr.Eval(doc.When, e.facts)
	if err != nil {
		return e.fail(res, runID, logger, &document.ParseError{Path: path, Err: fmt.Errorf("when: %w", err)})
	}
	if !ok {
		logger.Info("document guard is false, skipping", "when", doc.When)
		res.State = StateSkipped
		res.Succeeded = true
		res.Message = "skipped: when guard is false"
		e.emitter.Emit(events.New(events.DocumentApplied, runID).
			WithData("document", key).
			WithData("skipped", true))
		e.metrics.RecordDocument(string(StateSkipped))
		return res
	}

	res.State = StateApplying
	directives := doc.Directives()
	logger.Info("applying document", "directives", len(directives))
	e.emitter.Emit(events.New(events.DocumentApplying, runID).
		WithData("document", key).
		WithData("directives", len(directives)))

	for _, d := range directives {
		applied, err := e.applyDirective(ctx, logger, d)
		if err != nil {
			e.metrics.RecordDirective(string(d.Kind()), "failed")
			return e.fail(res, runID, logger, fmt.Errorf("%s: %w", d.Describe(), err))
		}
		if applied {
			res.Applied++
			e.metrics.RecordDirective(string(d.Kind()), "applied")
			e.emitter.Emit(events.New(events.DirectiveApplied, runID).
				WithData("document", key).
				WithData("kind", string(d.Kind())).
				WithData("directive", d.Describe()))
		} else {
			e.metrics.RecordDirective(string(d.Kind()), "skipped")
			e.emitter.Emit(events.New(events.DirectiveSkipped, runID).
				WithData("document", key).
				WithData("kind", string(d.Kind())).
				WithData("directive", d.Describe()))
		}
	}

	res.State = StateApplied
	res.Succeeded = true
	res.Message = fmt.Sprintf("applied %d of %d directive(s)", res.Applied, len(directives))
	logger.Info("configuration applied successfully", "applied", res.Applied)
	e.emitter.Emit(events.New(events.DocumentApplied, runID).
		WithData("document", key).
		WithData("applied", res.Applied))
	e.metrics.RecordDocument(string(StateApplied))
	return res
}

// Load reads, parses and structurally validates the document at path.
// raw is returned whenever the file could be read.
func Load(path string) (*document.Document, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &IOError{Op: "read", Path: path, Err: err}
	}
	doc, err := document.Parse(path, raw)
	if err != nil {
		return nil, raw, err
	}
	if verrs := validate.ValidateStructural(doc); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, raw, &document.ParseError{Path: path, Err: errors.Join(errs...)}
	}
	return doc, raw, nil
}

func (e *Engine) fail(res Result, runID string, logger *slog.Logger, err error) Result {
	res.State = StateFailed
	res.Succeeded = false
	res.Err = err
	res.Message = err.Error()
	logger.Error("failed to apply document", "error", err)
	e.emitter.Emit(events.New(events.DocumentFailed, runID).
		WithData("document", res.Key).
		WithData("error", err.Error()))
	e.metrics.RecordDocument(string(StateFailed))
	return res
}
