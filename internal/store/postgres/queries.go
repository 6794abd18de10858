package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jerrsapps1/opssync/internal/model"
)

// entityColumns is the column list used for SELECT statements on the
// entities table.
const entityColumns = `kind, id, name, assignment, status, version, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateEntity(ctx context.Context, db executor, e *model.Entity) error {
	if e.Version == 0 {
		e.Version = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO entities (
			kind, id, name, assignment, status, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`,
		string(e.Kind),
		e.ID,
		e.Name,
		string(e.Assignment),
		string(e.Status),
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func queryGetEntity(ctx context.Context, db executor, kind model.EntityKind, id string) (*model.Entity, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND id = $2`,
		string(kind), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return e, err
}

func queryListEntities(ctx context.Context, db executor, filter model.EntityFilter) ([]*model.Entity, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Kind) > 0 {
		placeholders := make([]string, len(filter.Kind))
		for i, k := range filter.Kind {
			placeholders[i] = nextArg()
			args = append(args, string(k))
		}
		whereClauses = append(whereClauses, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(st))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Assignment != nil {
		whereClauses = append(whereClauses, "assignment = "+nextArg())
		args = append(args, string(*filter.Assignment))
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses, "(name ILIKE "+p+" OR id ILIKE "+p+")")
		args = append(args, "%"+filter.Search+"%")
	}

	query := `SELECT COUNT(*) OVER () AS total_count, ` + entityColumns + ` FROM entities`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY kind, id"

	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		entities []*model.Entity
		total    int
	)
	for rows.Next() {
		e, rowTotal, err := scanEntityWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = rowTotal
		entities = append(entities, e)
	}
	return entities, total, rows.Err()
}

// queryCompareAndSwapAssignment performs the single-statement CAS write. The
// version predicate makes concurrent writers serialize without a lock: the
// loser's UPDATE matches no row, and we re-read to distinguish a lost race
// from a missing entity.
func queryCompareAndSwapAssignment(ctx context.Context, db executor, kind model.EntityKind, id string, expectedVersion int64, value model.Assignment) (*model.Entity, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE entities
		SET assignment = $1, version = version + 1, updated_at = now()
		WHERE kind = $2 AND id = $3 AND version = $4
		RETURNING `+entityColumns,
		string(value), string(kind), id, expectedVersion)

	e, err := scanEntity(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, getErr := queryGetEntity(ctx, db, kind, id)
	if getErr != nil {
		return nil, getErr // model.ErrNotFound or a real query error
	}
	return nil, &model.ConflictError{
		EntityKind: kind,
		EntityID:   id,
		Current:    current.Assignment,
		Version:    current.Version,
	}
}

func querySetStatus(ctx context.Context, db executor, kind model.EntityKind, id string, status model.Status) (*model.Entity, error) {
	// Archiving clears the assignment in the same statement; see store.Store.
	row := db.QueryRowContext(ctx, `
		UPDATE entities
		SET status = $1,
		    assignment = CASE WHEN $1 = 'archived' THEN '' ELSE assignment END,
		    version = version + 1,
		    updated_at = now()
		WHERE kind = $2 AND id = $3
		RETURNING `+entityColumns,
		string(status), string(kind), id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return e, err
}

func queryDeleteEntity(ctx context.Context, db executor, kind model.EntityKind, id string) (*model.Entity, error) {
	row := db.QueryRowContext(ctx, `
		DELETE FROM entities
		WHERE kind = $1 AND id = $2
		RETURNING `+entityColumns,
		string(kind), id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return e, err
}
