package store

import (
	"context"
	"errors"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var (
	// ErrSessionNotFound is returned by Get when no session exists for an identity.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict is returned when an optimistic update keeps losing to concurrent writers.
	ErrSessionConflict = errors.New("session update conflict")
)

// SessionStore keeps one conversation session per identity.
//
// Implementations must make Update an atomic read-modify-write per identity:
// two updates for the same identity never interleave, while updates for
// different identities do not wait on each other.
type SessionStore interface {
	// GetOrCreate returns the identity's session, creating one at the initial stage if absent.
	GetOrCreate(ctx context.Context, identity string) (*models.Session, error)

	// Get returns the identity's session or ErrSessionNotFound.
	Get(ctx context.Context, identity string) (*models.Session, error)

	// Reset removes the identity's session. Resetting a missing session is not an error.
	Reset(ctx context.Context, identity string) error

	// Update loads (or creates) the session, applies fn and commits the result.
	// If fn returns an error nothing is committed. If fn closes the session it is deleted.
	Update(ctx context.Context, identity string, fn func(*models.Session) error) error
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}
