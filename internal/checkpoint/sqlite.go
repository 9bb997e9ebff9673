package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. The default
// backend: a single file, no server, and transactional upserts give the
// per-phase atomicity the Store contract requires.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	institution TEXT NOT NULL,
	phase       TEXT NOT NULL,
	status      TEXT NOT NULL,
	snapshot    TEXT NOT NULL,
	saved_at    DATETIME NOT NULL,
	PRIMARY KEY (institution, phase)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	institution TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	result      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_institution ON runs(institution);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the checkpoint schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SavePhase(ctx context.Context, snap Snapshot) error {
	if phaseIndex(snap.Phase) < 0 {
		return eris.Errorf("checkpoint: unknown phase %q", snap.Phase)
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (institution, phase, status, snapshot, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (institution, phase) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			saved_at = excluded.saved_at`,
		snap.Institution, string(snap.Phase), string(snap.Result.Status), string(data), snap.SavedAt,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s/%s", snap.Institution, snap.Phase)
}

func (s *SQLiteStore) LoadPhase(ctx context.Context, institution string, phase model.PhaseID) (*Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE institution = ? AND phase = ?`,
		institution, string(phase),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s/%s", institution, phase)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode checkpoint %s/%s", institution, phase)
	}
	return &snap, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, institution string) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE institution = ?`, institution)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list checkpoints %s", institution)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode checkpoint")
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate checkpoints")
	}
	return latestSnapshot(snaps), nil
}

func (s *SQLiteStore) Clear(ctx context.Context, institution string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE institution = ?`, institution)
	return eris.Wrapf(err, "sqlite: clear checkpoints %s", institution)
}

func (s *SQLiteStore) SaveFinal(ctx context.Context, result *model.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, institution, started_at, result)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET result = excluded.result`,
		result.Metadata.RunID, result.Metadata.Institution, result.Metadata.StartedAt, string(data),
	)
	return eris.Wrapf(err, "sqlite: save run %s", result.Metadata.RunID)
}

func (s *SQLiteStore) LoadFinal(ctx context.Context, institution string) (*model.RunResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM runs WHERE institution = ?
		ORDER BY started_at DESC LIMIT 1`,
		institution,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load run %s", institution)
	}
	var result model.RunResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode run %s", institution)
	}
	return &result, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunMetadata, error) {
	query := `SELECT result FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunMetadata
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var result model.RunResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode run")
		}
		runs = append(runs, result.Metadata)
	}
	return runs, rows.Err()
}
