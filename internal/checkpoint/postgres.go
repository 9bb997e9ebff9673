package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/riq-labs/faculty-pipeline/internal/db"
	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where
// several workers share checkpoint state.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	institution TEXT NOT NULL,
	phase       TEXT NOT NULL,
	status      TEXT NOT NULL,
	snapshot    JSONB NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (institution, phase)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	institution TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	result      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_institution ON runs(institution);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS faculty (
	institution        TEXT NOT NULL,
	run_id             TEXT NOT NULL,
	name               TEXT NOT NULL,
	openalex_id        TEXT NOT NULL,
	orcid              TEXT,
	h_index            INT,
	works_count        INT,
	cited_by_count     BIGINT,
	email              TEXT,
	email_source       TEXT,
	email_confidence   TEXT,
	website            TEXT,
	website_source     TEXT,
	website_confidence TEXT
);

CREATE INDEX IF NOT EXISTS idx_faculty_institution ON faculty(institution);
`

// facultyColumns is the flat per-person projection kept alongside the
// JSONB run result so deployments can query contacts with plain SQL.
var facultyColumns = []string{
	"institution", "run_id", "name", "openalex_id", "orcid",
	"h_index", "works_count", "cited_by_count",
	"email", "email_source", "email_confidence",
	"website", "website_source", "website_confidence",
}

// Migrate creates the checkpoint schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SavePhase(ctx context.Context, snap Snapshot) error {
	if phaseIndex(snap.Phase) < 0 {
		return eris.Errorf("checkpoint: unknown phase %q", snap.Phase)
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (institution, phase, status, snapshot, saved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (institution, phase) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			saved_at = EXCLUDED.saved_at`,
		snap.Institution, string(snap.Phase), string(snap.Result.Status), data, snap.SavedAt,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s/%s", snap.Institution, snap.Phase)
}

func (s *PostgresStore) LoadPhase(ctx context.Context, institution string, phase model.PhaseID) (*Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM checkpoints WHERE institution = $1 AND phase = $2`,
		institution, string(phase),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s/%s", institution, phase)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode checkpoint %s/%s", institution, phase)
	}
	return &snap, nil
}

func (s *PostgresStore) Latest(ctx context.Context, institution string) (*Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot FROM checkpoints WHERE institution = $1`, institution)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list checkpoints %s", institution)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan checkpoint")
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, eris.Wrap(err, "postgres: decode checkpoint")
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate checkpoints")
	}
	return latestSnapshot(snaps), nil
}

func (s *PostgresStore) Clear(ctx context.Context, institution string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE institution = $1`, institution)
	return eris.Wrapf(err, "postgres: clear checkpoints %s", institution)
}

func (s *PostgresStore) SaveFinal(ctx context.Context, result *model.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, institution, started_at, result)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET result = EXCLUDED.result`,
		result.Metadata.RunID, result.Metadata.Institution, result.Metadata.StartedAt, data,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", result.Metadata.RunID)
	}

	rows := make([][]any, 0, len(result.Faculty))
	for i := range result.Faculty {
		rec := &result.Faculty[i]
		rows = append(rows, []any{
			result.Metadata.Institution, result.Metadata.RunID,
			rec.DisplayName, rec.ID, rec.ORCID,
			rec.HIndex, rec.WorksCount, rec.CitedByCount,
			rec.Email.Value, string(rec.Email.Source), string(rec.Email.Confidence),
			rec.Website.Value, string(rec.Website.Source), string(rec.Website.Confidence),
		})
	}
	_, err = db.ReplaceRows(ctx, s.pool, "faculty", "institution",
		result.Metadata.Institution, facultyColumns, rows)
	return eris.Wrapf(err, "postgres: save faculty rows %s", result.Metadata.RunID)
}

func (s *PostgresStore) LoadFinal(ctx context.Context, institution string) (*model.RunResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT result FROM runs WHERE institution = $1
		ORDER BY started_at DESC LIMIT 1`,
		institution,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load run %s", institution)
	}
	var result model.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode run %s", institution)
	}
	return &result, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunMetadata, error) {
	query := `SELECT result FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunMetadata
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var result model.RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, eris.Wrap(err, "postgres: decode run")
		}
		runs = append(runs, result.Metadata)
	}
	return runs, rows.Err()
}
