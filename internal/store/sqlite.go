package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/icp-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	inputs     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	counts     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_contractors (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	contractor_id   INTEGER NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT,
	phone           TEXT,
	domain          TEXT,
	state           TEXT,
	source_type     TEXT NOT NULL,
	score           INTEGER NOT NULL,
	tier            TEXT NOT NULL,
	certifications  TEXT NOT NULL,
	PRIMARY KEY (run_id, contractor_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_contractors_tier ON run_contractors(run_id, tier);
`

// Migrate creates the ledger tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, inputs []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if inputs == nil {
		inputs = []string{}
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal inputs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, inputs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(inputsJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Inputs:    inputs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts *model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET counts = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(countsJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, inputs, status, counts, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, inputs, status, counts, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveContractors replaces the run's snapshot rows in one transaction.
func (s *SQLiteStore) SaveContractors(ctx context.Context, runID string, cs []*model.Contractor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save contractors")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_contractors (run_id, contractor_id, name, normalized_name, phone, domain, state, source_type, score, tier, certifications)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, contractor_id) DO UPDATE SET
			name = excluded.name, normalized_name = excluded.normalized_name,
			phone = excluded.phone, domain = excluded.domain, state = excluded.state,
			source_type = excluded.source_type, score = excluded.score,
			tier = excluded.tier, certifications = excluded.certifications`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save contractors")
	}
	defer stmt.Close() //nolint:errcheck

	for _, c := range cs {
		row, err := snapshotRow(c.Snapshot(runID))
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save contractor %d", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save contractors")
	}
	return len(cs), nil
}

func (s *SQLiteStore) ListContractors(ctx context.Context, runID string) ([]model.ContractorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, contractor_id, name, normalized_name, phone, domain, state, source_type, score, tier, certifications
		 FROM run_contractors WHERE run_id = ? ORDER BY score DESC, name ASC, contractor_id ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contractors %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ContractorSnapshot
	for rows.Next() {
		var sn model.ContractorSnapshot
		var normalized, phone, domain, state sql.NullString
		var certsJSON string
		if err := rows.Scan(&sn.RunID, &sn.ContractorID, &sn.Name, &normalized, &phone, &domain, &state,
			&sn.SourceType, &sn.Score, &sn.Tier, &certsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contractor")
		}
		sn.NormalizedName, sn.Phone, sn.Domain, sn.State = normalized.String, phone.String, domain.String, state.String
		if err := json.Unmarshal([]byte(certsJSON), &sn.Certifications); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal certifications")
		}
		out = append(out, sn)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contractors iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads a runs row. Errors are returned unwrapped so callers can
// detect sql.ErrNoRows.
func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var inputsJSON string
	var countsJSON, errMsg sql.NullString

	if err := row.Scan(&r.ID, &inputsJSON, &r.Status, &countsJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRun(&r, []byte(inputsJSON), nullBytes(countsJSON)); err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

// decodeRun fills the JSON columns of a run.
func decodeRun(r *model.Run, inputsJSON, countsJSON []byte) error {
	if err := json.Unmarshal(inputsJSON, &r.Inputs); err != nil {
		return eris.Wrap(err, "unmarshal run inputs")
	}
	if len(countsJSON) > 0 && string(countsJSON) != "null" {
		r.Counts = &model.RunCounts{}
		if err := json.Unmarshal(countsJSON, r.Counts); err != nil {
			return eris.Wrap(err, "unmarshal run counts")
		}
	}
	return nil
}

// snapshotRow renders a snapshot in snapshotColumns order.
func snapshotRow(sn model.ContractorSnapshot) ([]any, error) {
	certs := sn.Certifications
	if certs == nil {
		certs = []string{}
	}
	certsJSON, err := json.Marshal(certs)
	if err != nil {
		return nil, eris.Wrap(err, "marshal certifications")
	}
	return []any{
		sn.RunID, sn.ContractorID, sn.Name, sn.NormalizedName, sn.Phone, sn.Domain,
		sn.State, string(sn.SourceType), sn.Score, string(sn.Tier), string(certsJSON),
	}, nil
}
