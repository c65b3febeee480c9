package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// InMemorySessionStore keeps sessions in process memory. Sessions are lost on restart.
type InMemorySessionStore struct {
	mu       sync.Mutex
	entries  map[string]*sessionEntry
	vertical string
	initial  string
	ttl      time.Duration
	now      func() time.Time
}

// sessionEntry serializes access to one identity.
type sessionEntry struct {
	mu      sync.Mutex
	refs    int
	session *models.Session
}

// Compile-time check that InMemorySessionStore implements SessionStore.
var _ SessionStore = (*InMemorySessionStore)(nil)

// NewInMemorySessionStore creates an in-memory session store.
func NewInMemorySessionStore(opts ...Option) *InMemorySessionStore {
	cfg := applyOpts(opts)
	slog.Debug("InMemorySessionStore.New: creating store", "vertical", cfg.Vertical, "initial_stage", cfg.InitialStage, "ttl", cfg.TTL)
	return &InMemorySessionStore{
		entries:  make(map[string]*sessionEntry),
		vertical: cfg.Vertical,
		initial:  cfg.InitialStage,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
}

func (s *InMemorySessionStore) acquire(identity string) *sessionEntry {
	s.mu.Lock()
	e, ok := s.entries[identity]
	if !ok {
		e = &sessionEntry{}
		s.entries[identity] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return e
}

func (s *InMemorySessionStore) release(identity string, e *sessionEntry) {
	e.mu.Unlock()

	s.mu.Lock()
	e.refs--
	if e.refs == 0 && e.session == nil {
		delete(s.entries, identity)
	}
	s.mu.Unlock()
}

// live returns the stored session unless it has expired. Caller holds e.mu.
func (s *InMemorySessionStore) live(e *sessionEntry) *models.Session {
	if e.session == nil {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(e.session.UpdatedAt) > s.ttl {
		slog.Debug("InMemorySessionStore: session expired", "identity", e.session.Identity, "vertical", s.vertical)
		e.session = nil
	}
	return e.session
}

func (s *InMemorySessionStore) GetOrCreate(ctx context.Context, identity string) (*models.Session, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	e := s.acquire(identity)
	defer s.release(identity, e)

	if sess := s.live(e); sess != nil {
		return cloneSession(sess), nil
	}
	e.session = models.NewSession(identity, s.vertical, s.initial)
	slog.Debug("InMemorySessionStore.GetOrCreate: created session", "identity", identity, "vertical", s.vertical)
	return cloneSession(e.session), nil
}

func (s *InMemorySessionStore) Get(ctx context.Context, identity string) (*models.Session, error) {
	e := s.acquire(identity)
	defer s.release(identity, e)

	if sess := s.live(e); sess != nil {
		return cloneSession(sess), nil
	}
	return nil, ErrSessionNotFound
}

func (s *InMemorySessionStore) Reset(ctx context.Context, identity string) error {
	e := s.acquire(identity)
	defer s.release(identity, e)

	e.session = nil
	slog.Debug("InMemorySessionStore.Reset: session removed", "identity", identity, "vertical", s.vertical)
	return nil
}

func (s *InMemorySessionStore) Update(ctx context.Context, identity string, fn func(*models.Session) error) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	e := s.acquire(identity)
	defer s.release(identity, e)

	sess := cloneSession(s.live(e))
	if sess == nil {
		sess = models.NewSession(identity, s.vertical, s.initial)
	}
	if err := fn(sess); err != nil {
		return err
	}
	if sess.Closed {
		e.session = nil
		slog.Debug("InMemorySessionStore.Update: session closed", "identity", identity, "vertical", s.vertical)
		return nil
	}
	sess.UpdatedAt = s.now()
	e.session = sess
	return nil
}

// liveCount returns the number of live sessions. An entry held by a caller
// counts as live without waiting for its lock.
func (s *InMemorySessionStore) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.mu.TryLock() {
			n++
			continue
		}
		if s.live(e) != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Sweep drops expired sessions and returns how many were removed. Expired
// sessions are already invisible to readers; Sweep reclaims their memory.
func (s *InMemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for identity, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.refs == 0 && s.live(e) == nil {
			delete(s.entries, identity)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		slog.Debug("InMemorySessionStore.Sweep: expired sessions removed", "vertical", s.vertical, "removed", removed)
	}
	return removed
}
