package docsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/szaher/config-manager/internal/telemetry"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// EverySchedule returns the cron descriptor for a fixed interval in minutes.
func EverySchedule(minutes int) string {
	return fmt.Sprintf("@every %dm", minutes)
}

// ParseSchedule validates a cron expression or descriptor.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Poller syncs a Source immediately and then on a schedule. Sync errors
// are logged and the loop continues.
type Poller struct {
	Source   Source
	Schedule string
	Once     bool
	// OnChange runs after a sync that changed the documents.
	OnChange func(ctx context.Context) error
	Logger   *slog.Logger
}

// Run blocks until ctx is done, or after the first sync when Once is set.
func (p *Poller) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	spec := p.Schedule
	if spec == "" {
		spec = EverySchedule(5)
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	logger.Info("starting document sync", "source", p.Source.Name(), "schedule", spec)
	p.tick(ctx, logger)
	if p.Once {
		logger.Info("single sync completed")
		return nil
	}

	for {
		next := sched.Next(time.Now())
		logger.Info("next sync scheduled", "at", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("sync stopped")
			return nil
		case <-timer.C:
			p.tick(ctx, logger)
		}
	}
}

func (p *Poller) tick(ctx context.Context, logger *slog.Logger) {
	changed, err := p.Source.Sync(ctx)
	if err != nil {
		logger.Error("error during sync", "source", p.Source.Name(), "error", err)
		return
	}
	if !changed || p.OnChange == nil {
		return
	}
	if err := p.OnChange(ctx); err != nil {
		logger.Error("apply after sync failed", "error", err)
	}
}
