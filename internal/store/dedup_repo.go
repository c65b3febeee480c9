// Package store provides the DedupRepo interface for inbound message deduplication.
package store

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupTTL is how long the in-memory dedup set remembers a message ID.
const DefaultDedupTTL = time.Hour

// DedupRepo defines the interface for inbound message deduplication.
// WhatsApp redelivers webhooks it considers unacknowledged, so the same
// message ID can arrive more than once.
type DedupRepo interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, identity string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}

// InMemoryDedup is a DedupRepo that forgets message IDs after a TTL.
// Expired IDs are dropped at most once per TTL while recording, or by Sweep.
type InMemoryDedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastPrune time.Time
}

// Compile-time check that InMemoryDedup implements DedupRepo.
var _ DedupRepo = (*InMemoryDedup)(nil)

// NewInMemoryDedup creates an in-memory dedup set. A non-positive ttl uses DefaultDedupTTL.
func NewInMemoryDedup(ttl time.Duration) *InMemoryDedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &InMemoryDedup{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *InMemoryDedup) RecordInbound(ctx context.Context, messageID, identity string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastPrune) > d.ttl {
		d.prune(now)
	}
	if at, ok := d.seen[messageID]; ok && now.Sub(at) <= d.ttl {
		return false, nil
	}
	d.seen[messageID] = now
	return true, nil
}

// Sweep drops expired message IDs and reports how many went.
func (d *InMemoryDedup) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prune(d.now())
}

func (d *InMemoryDedup) prune(now time.Time) int {
	d.lastPrune = now
	n := 0
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
			n++
		}
	}
	return n
}

func (d *InMemoryDedup) MarkProcessed(ctx context.Context, messageID string) error {
	return nil
}
