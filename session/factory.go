package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creastat/chatguard"
)

// StoreType represents the type of session store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// NewStore creates a new Store based on the given type.
// For Redis, requires WithRedisClient option.
// For SQLite, requires WithDB or WithSQLitePath option.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}

	// Apply options
	for _, opt := range opts {
		opt(config)
	}
	if config.now == nil {
		config.now = time.Now
	}

	switch storeType {
	case StoreTypeMemory:
		return newInMemoryStore(config.now), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, fmt.Errorf("%w: redis client is required", chatguard.ErrInvalidConfig)
		}
		return &redisStore{
			client: config.redisClient,
			ttl:    config.redisTTL,
			now:    config.now,
		}, nil

	case StoreTypeSQLite:
		db := config.db
		if db == nil {
			if config.sqlitePath == "" {
				return nil, fmt.Errorf("%w: sqlite path is required", chatguard.ErrInvalidConfig)
			}
			var err error
			db, err = openSQLite(config.sqlitePath)
			if err != nil {
				return nil, err
			}
		} else {
			// foreign_keys is per connection; pin the pool to the one migrate configures.
			db.SetMaxOpenConns(1)
		}
		store := &sqliteStore{db: db, now: config.now}
		if err := store.migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: %q", chatguard.ErrInvalidStoreType, storeType)
	}
}

// Helper functions for JSON marshaling
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
