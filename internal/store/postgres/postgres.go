// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/jerrsapps1/opssync/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	return queryCreateEntity(ctx, s.db, e)
}

func (s *PostgresStore) GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	return queryGetEntity(ctx, s.db, kind, id)
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter model.EntityFilter) ([]*model.Entity, int, error) {
	return queryListEntities(ctx, s.db, filter)
}

func (s *PostgresStore) CompareAndSwapAssignment(ctx context.Context, kind model.EntityKind, id string, expectedVersion int64, value model.Assignment) (*model.Entity, error) {
	return queryCompareAndSwapAssignment(ctx, s.db, kind, id, expectedVersion, value)
}

func (s *PostgresStore) SetStatus(ctx context.Context, kind model.EntityKind, id string, status model.Status) (*model.Entity, error) {
	return querySetStatus(ctx, s.db, kind, id, status)
}

func (s *PostgresStore) DeleteEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	return queryDeleteEntity(ctx, s.db, kind, id)
}
