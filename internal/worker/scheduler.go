package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/pipeline"
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Handler  *JobHandler
	Interval time.Duration
	Options  pipeline.RunOptions

	// RunOnStart triggers a run immediately instead of waiting one interval.
	RunOnStart bool

	Logger zerolog.Logger
	Clock  clockwork.Clock
}

// Scheduler triggers pipeline runs at a fixed interval.
type Scheduler struct {
	cfg   SchedulerConfig
	clock clockwork.Clock
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{cfg: cfg, clock: clock}
}

// Start blocks, running the pipeline every interval until ctx is done. Ticks
// that arrive while a run is still in progress are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.cfg.Logger.Info().Dur("interval", s.cfg.Interval).Msg("scheduler started")

	if s.cfg.RunOnStart {
		s.trigger(ctx)
	}

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	_, err := s.cfg.Handler.RunPipeline(ctx, s.cfg.Options)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.cfg.Logger.Warn().Msg("previous run still in progress, skipping tick")
	case err != nil:
		s.cfg.Logger.Error().Err(err).Msg("scheduled run failed")
	}
}
