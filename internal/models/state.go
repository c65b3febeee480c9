// Package models defines state management structures for LeadPipe conversations.
package models

import "time"

// Session is the per-identity conversation state for one vertical.
// A missing session is equivalent to a fresh one at the vertical's initial stage.
type Session struct {
	Identity  string            `json:"identity"`
	Vertical  string            `json:"vertical"`
	Stage     string            `json:"stage"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	// Closed asks the store to drop the session once the current update commits.
	Closed bool `json:"-"`
}

// NewSession returns a session positioned at the given stage.
func NewSession(identity, vertical, stage string) *Session {
	now := time.Now()
	return &Session{
		Identity:  identity,
		Vertical:  vertical,
		Stage:     stage,
		Fields:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Set stores a collected field value.
func (s *Session) Set(key, value string) {
	if s.Fields == nil {
		s.Fields = map[string]string{}
	}
	s.Fields[key] = value
}

// Get returns a collected field value, or "" when it was never collected.
func (s *Session) Get(key string) string {
	return s.Fields[key]
}

// Close marks the session for deletion.
func (s *Session) Close() {
	s.Closed = true
}
