package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a bulk upsert target.
type UpsertSpec struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns supplied by each row
	ConflictKeys []string // columns of the unique constraint
	UpdateCols   []string // columns rewritten on conflict; nil means every non-key column
}

func (s UpsertSpec) validate() error {
	if len(s.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(s.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (s UpsertSpec) updateColumns() []string {
	if s.UpdateCols != nil {
		return s.UpdateCols
	}
	keys := make(map[string]bool, len(s.ConflictKeys))
	for _, k := range s.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, c := range s.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// stagingTable is the temp table rows are copied into before the merge.
func (s UpsertSpec) stagingTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(s.Table, ".", "_")
}

// insertSQL builds the INSERT ... SELECT ... ON CONFLICT statement.
func (s UpsertSpec) insertSQL() string {
	cols := quoteAndJoin(s.Columns)
	action := "DO NOTHING"
	if upd := s.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(s.Table),
		cols,
		cols,
		pgx.Identifier{s.stagingTable()}.Sanitize(),
		quoteAndJoin(s.ConflictKeys),
		action,
	)
}

// BulkUpsert copies rows into a staging temp table with the COPY protocol
// and merges them into the target with INSERT ... ON CONFLICT, all in one
// transaction. Returns the rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := spec.stagingTable()
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(),
		sanitizeTable(spec.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into staging table for %s", spec.Table)
	}

	tag, err := tx.Exec(ctx, spec.insertSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a table name, splitting a schema qualifier.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
