// Package store provides the LeadRepo interface for persisted leads and query audits.
package store

import (
	"context"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultListLimit caps ListLeads when no limit is given.
const DefaultListLimit = 100

// LeadRepo persists completed leads and status-lookup audits.
type LeadRepo interface {
	// PersistLead stores an enriched lead. Storing the same lead ID twice is a no-op.
	PersistLead(ctx context.Context, lead models.EnrichedLead) error

	// PersistQuery stores an audit note for a read-only lookup.
	PersistQuery(ctx context.Context, audit models.QueryAudit) error

	// ListLeads returns the newest leads first, optionally filtered by vertical.
	ListLeads(ctx context.Context, vertical string, limit int) ([]models.EnrichedLead, error)

	// Close releases the database connection.
	Close() error
}
