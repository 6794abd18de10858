package postgres

import (
	"github.com/jerrsapps1/opssync/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e          model.Entity
		kind       string
		assignment string
		status     string
	)
	err := row.Scan(
		&kind,
		&e.ID,
		&e.Name,
		&assignment,
		&status,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = model.EntityKind(kind)
	e.Assignment = model.Assignment(assignment)
	e.Status = model.Status(status)
	return &e, nil
}

func scanEntityWithTotal(row rowScanner) (*model.Entity, int, error) {
	var (
		e          model.Entity
		total      int
		kind       string
		assignment string
		status     string
	)
	err := row.Scan(
		&total,
		&kind,
		&e.ID,
		&e.Name,
		&assignment,
		&status,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	e.Kind = model.EntityKind(kind)
	e.Assignment = model.Assignment(assignment)
	e.Status = model.Status(status)
	return &e, total, nil
}
