// Package store persists model runs and their per-location results.
package store

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/gwr-cli/internal/config"
	"github.com/sells-group/gwr-cli/internal/features"
	"github.com/sells-group/gwr-cli/internal/gwr"
	"github.com/sells-group/gwr-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Dataset string          `json:"dataset,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for model runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Locations
	SaveLocations(ctx context.Context, runID string, locs []model.Location) error
	GetLocations(ctx context.Context, runID string) ([]model.Location, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver and migrates it. The
// "none" driver returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "gwr.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Locations pairs fitted results with the source index and centroid of
// each record.
func Locations(runID string, indexes []int, coords []features.Coord, res *gwr.Results) ([]model.Location, error) {
	n, _ := res.Params.Dims()
	if len(indexes) != n || len(coords) != n || len(res.Residuals) != n {
		return nil, eris.Errorf("store: %d indexes and %d coordinates for %d fitted locations", len(indexes), len(coords), n)
	}
	out := make([]model.Location, n)
	for i := range n {
		r2 := math.NaN()
		if i < len(res.LocalR2) {
			r2 = res.LocalR2[i]
		}
		out[i] = model.Location{
			RunID:    runID,
			Index:    indexes[i],
			X:        coords[i].X,
			Y:        coords[i].Y,
			Params:   mat.Row(nil, i, res.Params),
			Residual: res.Residuals[i],
			LocalR2:  r2,
		}
	}
	return out, nil
}
