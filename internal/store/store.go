// Package store provides storage backends for LeadPipe.
//
// It includes the conversation session stores (in-memory and Redis) and the
// SQL lead stores (SQLite and PostgreSQL) that persist enriched leads, query
// audits and inbound dedup records.
package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Default configuration values
const (
	// DefaultSessionTTL bounds how long an idle conversation is remembered.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultKeyPrefix namespaces session keys in Redis.
	DefaultKeyPrefix = "leadpipe:session:"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN          string        // database connection string for SQL stores
	Vertical     string        // vertical whose sessions this store holds
	InitialStage string        // stage assigned to freshly created sessions
	TTL          time.Duration // idle session lifetime; zero disables expiry
	KeyPrefix    string        // Redis key prefix
	RedisClient  *redis.Client // Redis connection for RedisSessionStore
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithVertical sets the vertical a session store serves.
func WithVertical(vertical string) Option {
	return func(o *Opts) { o.Vertical = vertical }
}

// WithInitialStage sets the stage of newly created sessions.
func WithInitialStage(stage string) Option {
	return func(o *Opts) { o.InitialStage = stage }
}

// WithTTL sets the idle session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithRedisClient sets the Redis client used by RedisSessionStore.
func WithRedisClient(client *redis.Client) Option {
	return func(o *Opts) { o.RedisClient = client }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{TTL: DefaultSessionTTL, KeyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
