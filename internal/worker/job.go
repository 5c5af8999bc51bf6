// Package worker runs AuraCast pipeline jobs in the background. Jobs arrive
// as Pub/Sub messages or from a fixed-interval scheduler, and at most one
// pipeline run is in flight at a time.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/auracast/auracast/internal/pipeline"
	"github.com/auracast/auracast/internal/resilience"
)

// Job types accepted in JobMessage.JobType.
const (
	JobPipelineRun = "pipeline_run"
	JobHealthCheck = "health_check"
)

var (
	// ErrRunInProgress is returned when a pipeline run is requested while
	// another is still running.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrMalformedJob marks a message that can never be processed.
	ErrMalformedJob = errors.New("malformed job message")

	// ErrProviderUnhealthy is returned by the health check when an upstream
	// circuit breaker is open.
	ErrProviderUnhealthy = errors.New("upstream provider unhealthy")
)

// JobMessage is the JSON body of a job message.
type JobMessage struct {
	JobType   string `json:"job_type"`
	SkipFetch bool   `json:"skip_fetch,omitempty"`
}

// Runner runs the pipeline. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (pipeline.Report, error)
}

// Stats summarises the runs handled by a JobHandler.
type Stats struct {
	Runs         int64
	Failures     int64
	Running      bool
	LastRunAt    *time.Time
	LastDuration time.Duration
	LastError    string
}

// JobHandlerConfig configures a JobHandler.
type JobHandlerConfig struct {
	Runner Runner

	// Providers, when set, is consulted by health_check jobs.
	Providers *resilience.Registry

	// Timeout bounds one pipeline run. Zero means no limit beyond the caller's context.
	Timeout time.Duration

	Logger zerolog.Logger
	Clock  clockwork.Clock
}

// JobHandler decodes and executes jobs.
type JobHandler struct {
	runner    Runner
	providers *resilience.Registry
	timeout   time.Duration
	logger    zerolog.Logger
	clock     clockwork.Clock

	running sync.Mutex

	mu    sync.RWMutex
	stats Stats
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JobHandler{
		runner:    cfg.Runner,
		providers: cfg.Providers,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		clock:     clock,
	}
}

// Handle decodes one message body and runs the job it names. Unknown job
// types are logged and ignored. Errors wrapping ErrMalformedJob are permanent.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	switch msg.JobType {
	case JobPipelineRun:
		_, err := h.RunPipeline(ctx, pipeline.RunOptions{SkipFetch: msg.SkipFetch})
		return err
	case JobHealthCheck:
		return h.CheckHealth()
	case "":
		return fmt.Errorf("%w: missing job_type", ErrMalformedJob)
	default:
		h.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return nil
	}
}

// RunPipeline runs the pipeline once. It fails fast with ErrRunInProgress
// instead of queueing behind a running job.
func (h *JobHandler) RunPipeline(ctx context.Context, opts pipeline.RunOptions) (pipeline.Report, error) {
	if !h.running.TryLock() {
		return pipeline.Report{}, ErrRunInProgress
	}
	defer h.running.Unlock()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	startedAt := h.clock.Now().UTC()
	h.mu.Lock()
	h.stats.Running = true
	h.mu.Unlock()

	h.logger.Info().Bool("skip_fetch", opts.SkipFetch).Msg("starting pipeline run")
	rep, err := h.runner.Run(ctx, opts)

	h.mu.Lock()
	h.stats.Running = false
	h.stats.Runs++
	h.stats.LastRunAt = &startedAt
	h.stats.LastDuration = h.clock.Since(startedAt)
	h.stats.LastError = ""
	if err != nil {
		h.stats.Failures++
		h.stats.LastError = err.Error()
	}
	h.mu.Unlock()

	if err != nil {
		return rep, fmt.Errorf("pipeline run: %w", err)
	}
	return rep, nil
}

// CheckHealth fails when any registered provider has an open circuit breaker.
func (h *JobHandler) CheckHealth() error {
	if h.providers == nil {
		return nil
	}

	var open []string
	for _, p := range h.providers.AllHealth() {
		if p.CircuitState == gobreaker.StateOpen {
			open = append(open, p.Name)
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: circuit open for %v", ErrProviderUnhealthy, open)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}

// Stats returns a snapshot of the run statistics.
func (h *JobHandler) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}
