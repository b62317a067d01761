package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SQLiteStore persists plans and runs in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a store for the given database path. Call Init
// before use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database, enables WAL mode, and configures the pool.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SavePlan inserts a plan record.
func (s *SQLiteStore) SavePlan(ctx context.Context, p *PlanRecord) error {
	query := `
		INSERT INTO plans (id, project, distributed, node_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Project, p.Distributed, p.NodeCount, p.Payload, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID.
func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*PlanRecord, error) {
	query := `
		SELECT id, project, distributed, node_count, payload, created_at
		FROM plans WHERE id = ?
	`
	p := &PlanRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Project, &p.Distributed, &p.NodeCount, &p.Payload, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// ListPlans returns plans for a project, newest first. An empty project
// lists all plans.
func (s *SQLiteStore) ListPlans(ctx context.Context, project string, limit int) ([]*PlanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, project, distributed, node_count, payload, created_at
		FROM plans
		WHERE (? = '' OR project = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, project, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*PlanRecord
	for rows.Next() {
		p := &PlanRecord{}
		if err := rows.Scan(&p.ID, &p.Project, &p.Distributed, &p.NodeCount, &p.Payload, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateRun inserts a run record for a stored plan.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *RunRecord) error {
	query := `
		INSERT INTO runs (id, plan_id, status, started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.PlanID, r.Status, r.StartedAt, r.CompletedAt, r.Error, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRunStatus transitions a run's status, recording completion time
// for terminal states.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, runErr *string) error {
	now := time.Now().UTC()
	var completed *time.Time
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		completed = &now
	}

	query := `
		UPDATE runs
		SET status = ?, completed_at = COALESCE(?, completed_at), error = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, status, completed, runErr, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, plan_id, status, started_at, completed_at, error, created_at, updated_at
		FROM runs WHERE id = ?
	`
	r := &RunRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.PlanID, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs for a plan, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, planID string) ([]*RunRecord, error) {
	query := `
		SELECT id, plan_id, status, started_at, completed_at, error, created_at, updated_at
		FROM runs
		WHERE plan_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		r := &RunRecord{}
		if err := rows.Scan(&r.ID, &r.PlanID, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
