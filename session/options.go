package session

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for session stores.
type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	sqlitePath  string
	db          *sql.DB
	now         func() time.Time
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys. Zero disables expiry.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithSQLitePath sets the database file for the SQLite store.
func WithSQLitePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.sqlitePath = path
	}
}

// WithDB sets an already opened SQLite handle for the SQLite store.
// The store limits the handle to one open connection so that the
// foreign key pragma it sets covers every statement.
func WithDB(db *sql.DB) StoreOption {
	return func(c *storeConfig) {
		c.db = db
	}
}

// WithClock overrides the clock used to stamp timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		c.now = now
	}
}
