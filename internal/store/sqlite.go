// Package store provides storage backends for LeadPipe.
//
// This file implements an SQLite-backed store for leads, query audits and dedup records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements LeadRepo.
var _ LeadRepo = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("SQLiteStore.New: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("SQLiteStore.New: failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore.New: failed to open connection", "error", err)
		return nil, err
	}
	// a single writer avoids "database is locked" under concurrent side effects
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore.New: ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore.New: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.New: migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) PersistLead(ctx context.Context, lead models.EnrichedLead) error {
	args, err := leadArgs(lead)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		slog.Error("SQLiteStore.PersistLead: insert failed", "error", err, "lead_id", lead.ID, "vertical", lead.Vertical)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("SQLiteStore.PersistLead: lead stored", "lead_id", lead.ID, "vertical", lead.Vertical, "kind", lead.Kind)
	return nil
}

func (s *SQLiteStore) PersistQuery(ctx context.Context, audit models.QueryAudit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO query_audits (id, vertical, identity, resource, reference, found, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.Vertical, audit.Identity, audit.Resource, nilIfEmpty(audit.Reference), audit.Found, audit.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.PersistQuery: insert failed", "error", err, "vertical", audit.Vertical, "resource", audit.Resource)
		return fmt.Errorf("failed to insert query audit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, vertical string, limit int) ([]models.EnrichedLead, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	args := []interface{}{}
	if vertical != "" {
		query += ` WHERE vertical = ?`
		args = append(args, vertical)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore.ListLeads: query failed", "error", err)
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore.Close: closing database connection")
	return s.db.Close()
}
