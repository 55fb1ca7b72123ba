// Package runtime assembles the reconciliation stack from a loaded
// configuration and manages the lifecycle of its long-lived parts.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/szaher/config-manager/internal/apply"
	"github.com/szaher/config-manager/internal/batch"
	"github.com/szaher/config-manager/internal/check"
	"github.com/szaher/config-manager/internal/config"
	"github.com/szaher/config-manager/internal/events"
	"github.com/szaher/config-manager/internal/executor"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/host"
	"github.com/szaher/config-manager/internal/state"
	"github.com/szaher/config-manager/internal/telemetry"
)

// Runtime owns one Orchestrator and the sinks it reports to.
type Runtime struct {
	config       *config.Config
	orchestrator *batch.Orchestrator
	metrics      *telemetry.Metrics
	emitter      events.Emitter
	eventFile    *events.FileEmitter
	server       *Server
	logger       *slog.Logger
}

// Options overrides collaborators, mostly for tests. Zero values use
// the production implementations.
type Options struct {
	Logger   *slog.Logger
	Executor executor.Executor
	Checker  apply.StateChecker
	Emitter  events.Emitter
	Facts    *expr.Facts
}

// New wires the executor, host backends, state checker, engine and
// orchestrator described by cfg. The fingerprint store is loaded here.
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	metrics := telemetry.NewMetrics()

	packages, err := host.Packages(cfg.Packages.Backend)
	if err != nil {
		return nil, fmt.Errorf("package backend: %w", err)
	}
	services, err := host.Services(cfg.Services.Backend)
	if err != nil {
		return nil, fmt.Errorf("service backend: %w", err)
	}
	logger.Debug("host backends selected", "packages", packages.Name(), "services", services.Name())

	exec := opts.Executor
	if exec == nil {
		elevation, err := executor.ParseElevation(cfg.Executor.Elevate)
		if err != nil {
			return nil, err
		}
		exec = executor.New(
			executor.WithElevation(elevation),
			executor.WithWrapper(cfg.Executor.Wrapper),
			executor.WithLogger(logger),
			executor.WithObserver(metrics.RecordCommand),
		)
	}

	checker := opts.Checker
	if checker == nil {
		checker = check.New(executor.ExecRunner{}, packages, logger)
	}

	rt := &Runtime{config: cfg, metrics: metrics, logger: logger}

	var sinks events.Multi
	if opts.Emitter != nil {
		sinks = append(sinks, opts.Emitter)
	}
	if cfg.Events.File != "" {
		f, err := events.OpenFile(cfg.Events.File, logger)
		if err != nil {
			return nil, err
		}
		rt.eventFile = f
		sinks = append(sinks, f)
	}
	rt.emitter = sinks

	facts := expr.CurrentFacts()
	if opts.Facts != nil {
		facts = *opts.Facts
	}

	engine := apply.New(apply.Config{
		Executor:   exec,
		Checker:    checker,
		Packages:   packages,
		Services:   services,
		Facts:      facts,
		ScratchDir: cfg.Executor.ScratchDir,
		Emitter:    rt.emitter,
		Metrics:    metrics,
		Logger:     logger,
	})
	rt.orchestrator = batch.New(batch.Config{
		Engine:          engine,
		Backend:         state.NewLocalBackend(cfg.State.File, logger),
		Extensions:      cfg.Documents.Extensions,
		Emitter:         rt.emitter,
		Metrics:         metrics,
		MetricsTextfile: cfg.Metrics.Textfile,
		Logger:          logger,
	})
	return rt, nil
}

// Orchestrator returns the batch orchestrator.
func (rt *Runtime) Orchestrator() *batch.Orchestrator { return rt.orchestrator }

// Metrics returns the metrics registry shared by every component.
func (rt *Runtime) Metrics() *telemetry.Metrics { return rt.metrics }

// Run reconciles the configured document directory once.
func (rt *Runtime) Run(ctx context.Context) (*batch.Report, error) {
	return rt.orchestrator.Run(ctx, rt.config.Documents.Dir)
}

// RunShared is Run with overlapping triggers collapsed.
func (rt *Runtime) RunShared(ctx context.Context) (*batch.Report, error) {
	report, shared, err := rt.orchestrator.RunShared(ctx, rt.config.Documents.Dir)
	if shared {
		rt.logger.Debug("batch shared with a concurrent trigger")
	}
	return report, err
}

// StartMetrics serves the metrics endpoint on cfg.Metrics.Listen in the
// background. It is a no-op when no address is configured.
func (rt *Runtime) StartMetrics() error {
	addr := rt.config.Metrics.Listen
	if addr == "" {
		return nil
	}
	rt.server = NewServer(rt.metrics, WithLogger(rt.logger))
	ln, err := rt.server.Listen(addr)
	if err != nil {
		return err
	}
	rt.logger.Info("serving metrics", "addr", ln.Addr().String())
	go func() {
		if err := rt.server.Serve(ln); err != nil {
			rt.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the metrics server and closes the event log.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	if rt.eventFile != nil {
		if err := rt.eventFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event log: %w", err))
		}
	}
	return errors.Join(errs...)
}
