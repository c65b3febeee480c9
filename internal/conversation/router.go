package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Router defaults.
const (
	DefaultShards         = 8
	DefaultQueueSize      = 64
	DefaultEnqueueTimeout = 1 * time.Second
	DefaultHandleTimeout  = 30 * time.Second
)

var (
	ErrUnknownVertical = errors.New("unknown vertical")
	ErrQueueFull       = errors.New("conversation queue full")
	ErrRouterStopped   = errors.New("router stopped")
)

// MessageHandler processes one message for one identity. *Bot implements it.
type MessageHandler interface {
	Handle(ctx context.Context, identity, text string) (flow.StepResult, error)
}

// Router delivers inbound messages to the bot of their vertical. Messages
// for the same (vertical, identity) always land on the same shard and are
// handled one at a time in arrival order; different identities proceed in
// parallel on other shards.
type Router struct {
	handlers        map[string]MessageHandler
	defaultVertical string
	shards          []chan models.Inbound
	queueSize       int
	enqueueTimeout  time.Duration
	handleTimeout   time.Duration
	dedup           store.DedupRepo
	metrics         *metrics.Metrics

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithShards sets the number of worker goroutines.
func WithShards(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.shards = make([]chan models.Inbound, n)
		}
	}
}

// WithQueueSize sets the per-shard buffer.
func WithQueueSize(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithEnqueueTimeout bounds how long Enqueue waits on a full shard.
func WithEnqueueTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.enqueueTimeout = d
		}
	}
}

// WithHandleTimeout bounds the processing of a single message.
func WithHandleTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.handleTimeout = d
		}
	}
}

// WithDefaultVertical routes messages that carry no vertical.
func WithDefaultVertical(name string) RouterOption {
	return func(r *Router) { r.defaultVertical = name }
}

// WithDedup drops redelivered message IDs.
func WithDedup(d store.DedupRepo) RouterOption {
	return func(r *Router) { r.dedup = d }
}

// WithRouterMetrics counts dropped and duplicate messages.
func WithRouterMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a router over handlers keyed by vertical name.
func NewRouter(handlers map[string]MessageHandler, opts ...RouterOption) *Router {
	r := &Router{
		handlers:       handlers,
		shards:         make([]chan models.Inbound, DefaultShards),
		queueSize:      DefaultQueueSize,
		enqueueTimeout: DefaultEnqueueTimeout,
		handleTimeout:  DefaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i] = make(chan models.Inbound, r.queueSize)
	}
	return r
}

// Start launches one worker per shard. ctx is the parent of every
// message's processing context.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	for i, ch := range r.shards {
		r.wg.Add(1)
		go r.run(ctx, i, ch)
	}
	slog.Info("Router.Start: workers started", "shards", len(r.shards), "verticals", len(r.handlers))
}

// Stop stops accepting messages, lets the workers drain their queues and waits for them.
func (r *Router) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for _, ch := range r.shards {
		close(ch)
	}
	r.mu.Unlock()
	r.wg.Wait()
	slog.Info("Router.Stop: workers drained")
}

func (r *Router) shardFor(vertical, identity string) int {
	h := fnv.New32a()
	h.Write([]byte(vertical))
	h.Write([]byte{':'})
	h.Write([]byte(identity))
	return int(h.Sum32() % uint32(len(r.shards)))
}

// Enqueue queues msg for its identity's shard. Duplicate message IDs are
// dropped silently. A shard that stays full past the enqueue timeout makes
// the message drop with ErrQueueFull.
func (r *Router) Enqueue(ctx context.Context, msg models.Inbound) error {
	if msg.Vertical == "" {
		msg.Vertical = r.defaultVertical
	}
	if _, ok := r.handlers[msg.Vertical]; !ok {
		r.metrics.ObserveInbound(msg.Vertical, "unknown_vertical")
		return fmt.Errorf("%w: %q", ErrUnknownVertical, msg.Vertical)
	}
	if msg.Identity == "" {
		return models.ErrEmptyIdentity
	}
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}

	if r.dedup != nil && msg.MessageID != "" {
		fresh, err := r.dedup.RecordInbound(ctx, msg.MessageID, msg.Identity)
		if err != nil {
			slog.Error("Router.Enqueue: dedup check failed, processing anyway", "message_id", msg.MessageID, "error", err)
		} else if !fresh {
			slog.Debug("Router.Enqueue: duplicate message dropped", "message_id", msg.MessageID, "identity", msg.Identity)
			r.metrics.ObserveInbound(msg.Vertical, "duplicate")
			return nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRouterStopped
	}
	shard := r.shardFor(msg.Vertical, msg.Identity)
	select {
	case r.shards[shard] <- msg:
		return nil
	case <-time.After(r.enqueueTimeout):
		slog.Warn("Router.Enqueue: shard queue full, dropping message", "shard", shard, "vertical", msg.Vertical,
			"identity", msg.Identity, "timeout", r.enqueueTimeout)
		r.metrics.ObserveInbound(msg.Vertical, "dropped")
		return ErrQueueFull
	}
}

// Consume enqueues everything received on src until it closes or ctx is done.
func (r *Router) Consume(ctx context.Context, src <-chan models.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-src:
			if !ok {
				return
			}
			if err := r.Enqueue(ctx, msg); err != nil {
				slog.Warn("Router.Consume: message not queued", "identity", msg.Identity, "error", err)
			}
		}
	}
}

func (r *Router) run(ctx context.Context, shard int, ch <-chan models.Inbound) {
	defer r.wg.Done()
	slog.Debug("Router.run: worker started", "shard", shard)
	for msg := range ch {
		r.process(ctx, msg)
	}
	slog.Debug("Router.run: worker stopped", "shard", shard)
}

func (r *Router) process(parent context.Context, msg models.Inbound) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.handleTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router.process: handler panicked", "vertical", msg.Vertical, "identity", msg.Identity, "panic", fmt.Sprint(rec))
			r.metrics.ObserveInbound(msg.Vertical, "panic")
		}
	}()

	if _, err := r.handlers[msg.Vertical].Handle(ctx, msg.Identity, msg.Text); err != nil {
		// Already logged by the handler; the identity's next message starts from the committed session.
		return
	}
	if r.dedup != nil && msg.MessageID != "" {
		if err := r.dedup.MarkProcessed(ctx, msg.MessageID); err != nil {
			slog.Warn("Router.process: mark processed failed", "message_id", msg.MessageID, "error", err)
		}
	}
}
