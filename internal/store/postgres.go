// Package store provides storage backends for LeadPipe.
//
// This file implements a PostgreSQL-backed store for leads, query audits and dedup records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements LeadRepo.
var _ LeadRepo = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to open connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore.NewPostgresStore: ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) PersistLead(ctx context.Context, lead models.EnrichedLead) error {
	args, err := leadArgs(lead)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		args...)
	if err != nil {
		slog.Error("PostgresStore.PersistLead: insert failed", "error", err, "lead_id", lead.ID, "vertical", lead.Vertical)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("PostgresStore.PersistLead: lead stored", "lead_id", lead.ID, "vertical", lead.Vertical, "kind", lead.Kind)
	return nil
}

func (s *PostgresStore) PersistQuery(ctx context.Context, audit models.QueryAudit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_audits (id, vertical, identity, resource, reference, found, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		audit.ID, audit.Vertical, audit.Identity, audit.Resource, nilIfEmpty(audit.Reference), audit.Found, audit.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.PersistQuery: insert failed", "error", err, "vertical", audit.Vertical, "resource", audit.Resource)
		return fmt.Errorf("failed to insert query audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, vertical string, limit int) ([]models.EnrichedLead, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if vertical != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+leadColumns+` FROM leads WHERE vertical = $1 ORDER BY created_at DESC LIMIT $2`, vertical, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		slog.Error("PostgresStore.ListLeads: query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.EnrichedLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore.Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("PostgresStore.Close: failed to close database", "error", err)
	}
	return err
}
