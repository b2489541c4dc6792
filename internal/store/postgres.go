package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/insights-cli/internal/db"
	"github.com/sells-group/insights-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Besides the JSONB run
// record, completed runs write one row per insight to run_insights so
// insights can be queried with SQL.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
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
	files      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	provider   TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	results    JSONB,
	stats      JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_files ON runs USING GIN (files jsonb_path_ops);

CREATE TABLE IF NOT EXISTS run_insights (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	filename  TEXT NOT NULL,
	position  INTEGER NOT NULL,
	quote     TEXT NOT NULL,
	topic     TEXT NOT NULL,
	sentiment TEXT NOT NULL,
	user_need TEXT NOT NULL,
	evidence  TEXT NOT NULL,
	PRIMARY KEY (run_id, filename, position)
);

CREATE INDEX IF NOT EXISTS idx_run_insights_topic ON run_insights(topic);
CREATE INDEX IF NOT EXISTS idx_run_insights_sentiment ON run_insights(sentiment);
`

const postgresRunColumns = `id, files, status, provider, model, results, stats, error, created_at, updated_at`

var insightColumns = []string{"run_id", "filename", "position", "quote", "topic", "sentiment", "user_need", "evidence"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

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

func (s *PostgresStore) CreateRun(ctx context.Context, files []model.FileRef, provider, modelID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if files == nil {
		files = []model.FileRef{}
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal files")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, files, status, provider, model, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, filesJSON, string(model.RunStatusRunning), provider, modelID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Files:     files,
		Status:    model.RunStatusRunning,
		Provider:  provider,
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteRun stores the results and replaces the run's insight rows in a
// single transaction.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, results []model.AnalysisResult, stats model.RunStats) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET results = $1, stats = $2, status = $3, updated_at = $4 WHERE id = $5`,
		resultsJSON, statsJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_insights WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear insights %s", runID)
	}
	if _, err := db.CopyFrom(ctx, tx, "run_insights", insightColumns, insightRows(runID, results)); err != nil {
		return eris.Wrapf(err, "postgres: copy insights %s", runID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete run")
}

func insightRows(runID string, results []model.AnalysisResult) [][]any {
	var rows [][]any
	for _, res := range results {
		for i, ins := range res.Insights {
			rows = append(rows, []any{
				runID, res.Filename, i,
				ins.Quote, ins.Topic, string(ins.Sentiment), ins.UserNeed, ins.Evidence,
			})
		}
	}
	return rows
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
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Filename != "" {
		query += fmt.Sprintf(` AND files @> jsonb_build_array(jsonb_build_object('filename', $%d::text))`, argIdx)
		args = append(args, filter.Filename)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
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

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count runs")
	}
	defer rows.Close()

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.RunStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var filesJSON, resultsJSON, statsJSON []byte

	if err := row.Scan(&r.ID, &filesJSON, &status, &r.Provider, &r.Model, &resultsJSON, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := decodeRunJSON(&r, filesJSON, resultsJSON, statsJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: decode run")
	}
	return &r, nil
}
