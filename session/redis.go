package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/chatguard"
)

const (
	// Redis key prefix for session hashes
	sessionKeyPrefix = "session:"
	// Suffix of the per-session message list
	messagesKeySuffix = ":messages"
	// Sorted set of session ids scored by last activity (unix nanos)
	activityKey = "sessions:activity"

	fieldSubject      = "subject"
	fieldCreatedAt    = "created_at"
	fieldLastActivity = "last_activity"
)

// redisStore implements Store using a hash per session, a list per
// session's messages and an activity index.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func messagesKey(id string) string { return sessionKeyPrefix + id + messagesKeySuffix }

// touch sets last_activity to at in the hash and the activity index.
func (s *redisStore) touch(ctx context.Context, pipe redis.Pipeliner, id string, at time.Time) {
	pipe.ZAdd(ctx, activityKey, redis.Z{Score: float64(at.UnixNano()), Member: id})
	pipe.HSet(ctx, sessionKey(id), fieldLastActivity, strconv.FormatInt(at.UnixNano(), 10))
	if s.ttl > 0 {
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		pipe.Expire(ctx, messagesKey(id), s.ttl)
	}
}

// UpsertSession implements Store.
func (s *redisStore) UpsertSession(ctx context.Context, id, subject string) (*Record, error) {
	key := sessionKey(id)
	now := s.now()

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		last, err := tx.HGet(ctx, key, fieldLastActivity).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		at := now
		if err == nil {
			at = laterOf(parseNanos(last), now)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			created := strconv.FormatInt(now.UnixNano(), 10)
			pipe.HSetNX(ctx, key, fieldSubject, subject)
			pipe.HSetNX(ctx, key, fieldCreatedAt, created)
			s.touch(ctx, pipe, id, at)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession implements Store.
func (s *redisStore) GetSession(ctx context.Context, id string) (*Record, error) {
	var (
		fields *redis.MapStringStringCmd
		count  *redis.IntCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, sessionKey(id))
		count = pipe.LLen(ctx, messagesKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return recordFromHash(id, fields.Val(), count.Val()), nil
}

func recordFromHash(id string, fields map[string]string, count int64) *Record {
	if len(fields) == 0 {
		return nil
	}
	return &Record{
		ID:           id,
		Subject:      fields[fieldSubject],
		CreatedAt:    parseNanos(fields[fieldCreatedAt]),
		LastActivity: parseNanos(fields[fieldLastActivity]),
		MessageCount: int(count),
	}
}

func parseNanos(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// ListSessions implements Store.
func (s *redisStore) ListSessions(ctx context.Context, limit int) ([]Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, activityKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}

	hashes := make([]*redis.MapStringStringCmd, len(ids))
	counts := make([]*redis.IntCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			hashes[i] = pipe.HGetAll(ctx, sessionKey(id))
			counts[i] = pipe.LLen(ctx, messagesKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	records := make([]Record, 0, len(ids))
	var expired []any
	for i, id := range ids {
		rec := recordFromHash(id, hashes[i].Val(), counts[i].Val())
		if rec == nil {
			expired = append(expired, id)
			continue
		}
		records = append(records, *rec)
	}
	// Hashes that expired through TTL leave stale index entries behind.
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, activityKey, expired...).Err()
	}
	return records, nil
}

// DeleteSession implements Store.
func (s *redisStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(id))
		pipe.Del(ctx, messagesKey(id))
		pipe.ZRem(ctx, activityKey, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// CountSessions implements Store.
func (s *redisStore) CountSessions(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, activityKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(n), nil
}

// AddMessage implements Store.
func (s *redisStore) AddMessage(ctx context.Context, id string, msg chatguard.Message) error {
	key := sessionKey(id)
	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	val, err := marshalJSON(msg)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		last, err := tx.HGet(ctx, key, fieldLastActivity).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", chatguard.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		at := laterOf(parseNanos(last), now)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, messagesKey(id), val)
			s.touch(ctx, pipe, id, at)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, chatguard.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

// ListMessages implements Store.
func (s *redisStore) ListMessages(ctx context.Context, id string, limit int) ([]chatguard.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, messagesKey(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return decodeMessages(vals)
}

func decodeMessages(vals []string) ([]chatguard.Message, error) {
	msgs := make([]chatguard.Message, 0, len(vals))
	for _, v := range vals {
		var msg chatguard.Message
		if err := unmarshalJSON([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// CountMessages implements Store.
func (s *redisStore) CountMessages(ctx context.Context, id string) (int, error) {
	n, err := s.client.LLen(ctx, messagesKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(n), nil
}

// TrimMessages implements Store.
func (s *redisStore) TrimMessages(ctx context.Context, id string, keep int) (int, error) {
	key := messagesKey(id)
	deleted := 0

	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		msgs, err := decodeMessages(vals)
		if err != nil {
			return err
		}

		kept := chatguard.TrimHistory(msgs, keep)
		if len(kept) == len(msgs) {
			return nil
		}

		encoded := make([]any, 0, len(kept))
		for _, msg := range kept {
			v, err := marshalJSON(msg)
			if err != nil {
				return err
			}
			encoded = append(encoded, v)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.RPush(ctx, key, encoded...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		if err == nil {
			deleted = len(msgs) - len(kept)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim messages: %w", err)
	}
	return deleted, nil
}

// DeleteInactiveSessions implements Store.
func (s *redisStore) DeleteInactiveSessions(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, activityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find inactive sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted := 0
	for _, id := range ids {
		ok, err := s.DeleteSession(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// DeleteMessagesBefore implements Store.
// Messages are appended in creation order, so old ones form a prefix of
// each list. The prefix is removed with LTRIM under WATCH; a concurrent
// TrimMessages rewrites the list and aborts the transaction, which is
// then retried on the new contents.
func (s *redisStore) DeleteMessagesBefore(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRange(ctx, activityKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		n, err := s.deletePrefixBefore(ctx, messagesKey(id), before)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete old messages: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}

func (s *redisStore) deletePrefixBefore(ctx context.Context, key string, before time.Time) (int, error) {
	removed := 0
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		msgs, err := decodeMessages(vals)
		if err != nil {
			return err
		}

		n := 0
		for n < len(msgs) && msgs[n].CreatedAt.Before(before) {
			n++
		}
		if n == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LTrim(ctx, key, int64(n), -1)
			return nil
		})
		if err == nil {
			removed = n
		}
		return err
	})
	return removed, err
}

const maxWatchRetries = 5

// watch runs fn in an optimistic transaction on key, retrying when
// another client changed key before EXEC.
func (s *redisStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err = s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*redisStore)(nil)
