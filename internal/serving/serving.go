// Package serving holds the read-only state the API answers from: the trained
// model and the aligned master rows. A Context is built once at startup and
// shared by every request; nothing mutates it afterwards.
package serving

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/model"
	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/table"
)

var (
	// ErrModelUnavailable is returned when no model artifact was loaded.
	ErrModelUnavailable = errors.New("model not loaded")

	// ErrNoData is returned when no aligned rows were loaded, or none match.
	ErrNoData = errors.New("no aligned data loaded")

	// ErrIncompleteFeatures is returned when a row lacks one of the model predictors.
	ErrIncompleteFeatures = errors.New("row has missing model features")
)

// Context is an immutable snapshot of the model and the master table.
type Context struct {
	model    *model.Model
	rows     []observation.Aligned
	loadedAt time.Time
}

// New builds a Context from an already loaded model and rows. Either may be
// empty; rows are copied.
func New(m *model.Model, rows []observation.Aligned, loadedAt time.Time) *Context {
	c := &Context{
		rows:     append([]observation.Aligned(nil), rows...),
		loadedAt: loadedAt,
	}
	if m != nil {
		cp := *m
		c.model = &cp
	}
	return c
}

// LoadConfig configures Load.
type LoadConfig struct {
	Store         model.Store
	MasterPath    string
	DensityColumn string
	Logger        zerolog.Logger
	Clock         clockwork.Clock
}

// Load reads the model artifact and the master table. A missing or unreadable
// part is logged and left empty so the API can still start and report itself
// not ready; only a cancelled ctx is returned as an error.
func Load(ctx context.Context, cfg LoadConfig) (*Context, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	densityColumn := cfg.DensityColumn
	if densityColumn == "" {
		densityColumn = table.DefaultDensityColumn
	}

	var m *model.Model
	if cfg.Store != nil {
		loaded, err := cfg.Store.Load(ctx)
		switch {
		case err == nil:
			m = loaded
			cfg.Logger.Info().
				Time("trained_at", m.TrainedAt).
				Int("training_rows", m.TrainingRows).
				Float64("training_mse", m.TrainingMSE).
				Msg("model loaded")
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			cfg.Logger.Error().Err(err).Msg("failed to load model, prediction endpoints unavailable")
		}
	}

	rows, skipped, err := table.ReadMasterFile(cfg.MasterPath, densityColumn)
	if err != nil {
		cfg.Logger.Error().Err(err).Str("path", cfg.MasterPath).Msg("failed to load master table, data endpoints unavailable")
		rows = nil
	} else {
		cfg.Logger.Info().
			Int("rows", len(rows)).
			Int("skipped", skipped).
			Str("path", cfg.MasterPath).
			Msg("master table loaded")
	}

	return New(m, rows, clock.Now().UTC()), nil
}

// Ready reports whether both the model and at least one row are loaded.
func (c *Context) Ready() bool {
	return c.model != nil && len(c.rows) > 0
}

// Status describes what the Context holds.
type Status struct {
	ModelLoaded  bool
	TrainedAt    time.Time
	TrainingRows int
	TrainingMSE  float64
	Rows         int
	LoadedAt     time.Time
}

// Status returns a summary of the loaded state.
func (c *Context) Status() Status {
	s := Status{
		Rows:     len(c.rows),
		LoadedAt: c.loadedAt,
	}
	if c.model != nil {
		s.ModelLoaded = true
		s.TrainedAt = c.model.TrainedAt
		s.TrainingRows = c.model.TrainingRows
		s.TrainingMSE = c.model.TrainingMSE
	}
	return s
}

// Predict returns the clamped model prediction for x.
func (c *Context) Predict(x [4]float64) (float64, error) {
	if c.model == nil {
		return 0, ErrModelUnavailable
	}
	return c.model.Predict(x), nil
}

// PredictRow predicts from a row's own features.
func (c *Context) PredictRow(r observation.Aligned) (float64, error) {
	if c.model == nil {
		return 0, ErrModelUnavailable
	}
	x, ok := r.Features()
	if !ok {
		return 0, ErrIncompleteFeatures
	}
	return c.model.Predict(x), nil
}

// LastRow returns the final row of the master table.
func (c *Context) LastRow() (observation.Aligned, error) {
	if len(c.rows) == 0 {
		return observation.Aligned{}, ErrNoData
	}
	return c.rows[len(c.rows)-1], nil
}

// LastRows returns a copy of the final n rows in table order.
func (c *Context) LastRows(n int) []observation.Aligned {
	if n <= 0 {
		return nil
	}
	start := max(len(c.rows)-n, 0)
	return append([]observation.Aligned(nil), c.rows[start:]...)
}

// LastMatching returns up to n of the final rows satisfying keep, in table order.
func (c *Context) LastMatching(n int, keep func(observation.Aligned) bool) []observation.Aligned {
	if n <= 0 {
		return nil
	}
	var out []observation.Aligned
	for i := len(c.rows) - 1; i >= 0 && len(out) < n; i-- {
		if keep(c.rows[i]) {
			out = append(out, c.rows[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HasFeatures reports whether r carries all four model predictors.
func HasFeatures(r observation.Aligned) bool {
	_, ok := r.Features()
	return ok
}

// HasGroundComparison reports whether r has both a density and a nearest
// ground value.
func HasGroundComparison(r observation.Aligned) bool {
	return r.Density != nil && r.NearestGroundValue != nil
}
