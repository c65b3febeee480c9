package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic transaction retries in Update.
const maxUpdateRetries = 32

// RedisSessionStore keeps sessions in Redis as JSON values with a TTL.
// Update uses WATCH/MULTI so concurrent writers for one identity never interleave.
type RedisSessionStore struct {
	client   *redis.Client
	vertical string
	initial  string
	ttl      time.Duration
	prefix   string
}

// Compile-time check that RedisSessionStore implements SessionStore.
var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(opts ...Option) (*RedisSessionStore, error) {
	cfg := applyOpts(opts)
	if cfg.RedisClient == nil {
		slog.Error("RedisSessionStore.New: redis client not set")
		return nil, fmt.Errorf("redis client not set")
	}
	slog.Debug("RedisSessionStore.New: creating store", "vertical", cfg.Vertical, "prefix", cfg.KeyPrefix, "ttl", cfg.TTL)
	return &RedisSessionStore{
		client:   cfg.RedisClient,
		vertical: cfg.Vertical,
		initial:  cfg.InitialStage,
		ttl:      cfg.TTL,
		prefix:   cfg.KeyPrefix,
	}, nil
}

func (s *RedisSessionStore) key(identity string) string {
	return s.prefix + s.vertical + ":" + identity
}

func (s *RedisSessionStore) load(ctx context.Context, c redis.Cmdable, identity string) (*models.Session, error) {
	data, err := c.Get(ctx, s.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for %s: %w", identity, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", identity, err)
	}
	if sess.Fields == nil {
		sess.Fields = map[string]string{}
	}
	return &sess, nil
}

func (s *RedisSessionStore) save(ctx context.Context, c redis.Cmdable, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", sess.Identity, err)
	}
	return c.Set(ctx, s.key(sess.Identity), data, s.ttl).Err()
}

func (s *RedisSessionStore) GetOrCreate(ctx context.Context, identity string) (*models.Session, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	var out *models.Session
	err := s.Update(ctx, identity, func(sess *models.Session) error {
		out = cloneSession(sess)
		return nil
	})
	return out, err
}

func (s *RedisSessionStore) Get(ctx context.Context, identity string) (*models.Session, error) {
	sess, err := s.load(ctx, s.client, identity)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *RedisSessionStore) Reset(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.key(identity)).Err(); err != nil {
		slog.Error("RedisSessionStore.Reset: delete failed", "identity", identity, "error", err)
		return fmt.Errorf("failed to reset session for %s: %w", identity, err)
	}
	slog.Debug("RedisSessionStore.Reset: session removed", "identity", identity, "vertical", s.vertical)
	return nil
}

func (s *RedisSessionStore) Update(ctx context.Context, identity string, fn func(*models.Session) error) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	key := s.key(identity)

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, identity)
		if err != nil {
			return err
		}
		if sess == nil {
			sess = models.NewSession(identity, s.vertical, s.initial)
		}
		if err := fn(sess); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if sess.Closed {
				pipe.Del(ctx, key)
				return nil
			}
			sess.UpdatedAt = time.Now()
			return s.save(ctx, pipe, sess)
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("RedisSessionStore.Update: transaction conflict, retrying", "identity", identity, "attempt", attempt+1)
			continue
		}
		return err
	}
	slog.Warn("RedisSessionStore.Update: giving up after conflicts", "identity", identity, "retries", maxUpdateRetries)
	return ErrSessionConflict
}
