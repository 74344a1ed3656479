package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-resolver/internal/db"
	"github.com/sells-group/icp-resolver/internal/model"
)

// PostgresStore implements Store on a shared Postgres database.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to Postgres and returns a store over the pool.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, dsn, db.PoolOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	inputs     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	counts     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	certifications  JSONB NOT NULL,
	PRIMARY KEY (run_id, contractor_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_contractors_tier ON run_contractors(run_id, tier);
`

// Migrate creates the ledger tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, inputs []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if inputs == nil {
		inputs = []string{}
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal inputs")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, inputs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, inputsJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Inputs:    inputs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counts *model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET counts = $1, status = $2, updated_at = $3 WHERE id = $4`,
		countsJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
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
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT id, inputs, status, counts, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, inputs, status, counts, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT $%d`, argIdx)
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

// SaveContractors bulk-upserts the run's snapshot rows.
func (s *PostgresStore) SaveContractors(ctx context.Context, runID string, cs []*model.Contractor) (int, error) {
	rows := make([][]any, 0, len(cs))
	for _, c := range cs {
		row, err := snapshotRow(c.Snapshot(runID))
		if err != nil {
			return 0, eris.Wrap(err, "postgres: save contractors")
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:        "run_contractors",
		Columns:      snapshotColumns,
		ConflictKeys: []string{"run_id", "contractor_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save contractors for run %s", runID)
	}
	return int(n), nil
}

func (s *PostgresStore) ListContractors(ctx context.Context, runID string) ([]model.ContractorSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, contractor_id, name, normalized_name, phone, domain, state, source_type, score, tier, certifications
		 FROM run_contractors WHERE run_id = $1 ORDER BY score DESC, name ASC, contractor_id ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contractors %s", runID)
	}
	defer rows.Close()

	var out []model.ContractorSnapshot
	for rows.Next() {
		var sn model.ContractorSnapshot
		var normalized, phone, domain, state *string
		var certsJSON []byte
		if err := rows.Scan(&sn.RunID, &sn.ContractorID, &sn.Name, &normalized, &phone, &domain, &state,
			&sn.SourceType, &sn.Score, &sn.Tier, &certsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contractor")
		}
		sn.NormalizedName, sn.Phone, sn.Domain, sn.State = deref(normalized), deref(phone), deref(domain), deref(state)
		if err := json.Unmarshal(certsJSON, &sn.Certifications); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal certifications")
		}
		out = append(out, sn)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contractors iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var inputsJSON, countsJSON []byte
	var errMsg *string

	if err := row.Scan(&r.ID, &inputsJSON, &r.Status, &countsJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRun(&r, inputsJSON, countsJSON); err != nil {
		return nil, err
	}
	r.Error = deref(errMsg)
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
