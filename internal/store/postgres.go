package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/db"
	"github.com/sells-group/gwr-cli/internal/model"
)

// CentroidSRID is the spatial reference recorded on stored centroids.
const CentroidSRID = 4326

// locationColumns is the COPY column order of run_locations.
var locationColumns = []string{"run_id", "idx", "centroid", "params", "residual", "local_r2"}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dataset    TEXT NOT NULL,
	config     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	bandwidth  DOUBLE PRECISION,
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_locations (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	centroid BYTEA NOT NULL,
	params   DOUBLE PRECISION[] NOT NULL,
	residual DOUBLE PRECISION NOT NULL,
	local_r2 DOUBLE PRECISION,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, dataset, config, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, cfg.Dataset, cfgJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Config:    cfg,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, bandwidth = $2, status = $3, updated_at = $4 WHERE id = $5`,
		resultJSON, result.Bandwidth, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, config, status, bandwidth, result, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, config, status, bandwidth, result, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Dataset != "" {
		query += fmt.Sprintf(` AND dataset = $%d`, argIdx)
		args = append(args, filter.Dataset)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveLocations replaces the stored locations of a run, bulk loading them
// with COPY inside one transaction.
func (s *PostgresStore) SaveLocations(ctx context.Context, runID string, locs []model.Location) error {
	rows := make([][]any, len(locs))
	for i, loc := range locs {
		centroid, err := EncodeCentroid(loc.X, loc.Y)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode centroid of location %d", loc.Index)
		}
		var r2 *float64
		if !math.IsNaN(loc.LocalR2) && !math.IsInf(loc.LocalR2, 0) {
			r2 = &loc.LocalR2
		}
		rows[i] = []any{runID, loc.Index, centroid, loc.Params, loc.Residual, r2}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save locations")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM run_locations WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear locations of run %s", runID)
	}
	n, err := db.CopyFrom(ctx, tx, "run_locations", locationColumns, rows)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit locations")
	}

	zap.L().Debug("saved run locations",
		zap.String("component", "store"),
		zap.String("run_id", runID),
		zap.Int64("rows", n),
	)
	return nil
}

func (s *PostgresStore) GetLocations(ctx context.Context, runID string) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, centroid, params, residual, local_r2 FROM run_locations WHERE run_id = $1 ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		loc := model.Location{RunID: runID}
		var centroid []byte
		var r2 *float64
		if err := rows.Scan(&loc.Index, &centroid, &loc.Params, &loc.Residual, &r2); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		if loc.X, loc.Y, err = DecodeCentroid(centroid); err != nil {
			return nil, err
		}
		loc.LocalR2 = math.NaN()
		if r2 != nil {
			loc.LocalR2 = *r2
		}
		locs = append(locs, loc)
	}
	return locs, eris.Wrap(rows.Err(), "postgres: get locations iterate")
}

// EncodeCentroid returns the little-endian EWKB encoding of a point with
// CentroidSRID.
func EncodeCentroid(x, y float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(CentroidSRID)
	b, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal ewkb")
	}
	return b, nil
}

// DecodeCentroid parses an EWKB point.
func DecodeCentroid(b []byte) (float64, float64, error) {
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: unmarshal ewkb")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("postgres: centroid is a %T, not a point", g)
	}
	return pt.X(), pt.Y(), nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var cfgJSON []byte
	var resultJSON *[]byte
	var bandwidth *float64
	var runErr *string

	if err := row.Scan(&r.ID, &cfgJSON, &r.Status, &bandwidth, &resultJSON, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfgJSON, &r.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal config")
	}
	if bandwidth != nil {
		r.Bandwidth = *bandwidth
	}
	if runErr != nil {
		r.Error = *runErr
	}
	if resultJSON != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
