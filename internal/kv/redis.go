package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	fieldValue    = "value"
	fieldRevision = "revision"
)

// RedisStore keeps every entry in a hash at <prefix>:<bucket>:<key> and the
// keys of a bucket in a set at <prefix>:<bucket>. Revisions come from the
// counter at <prefix>#revision.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore using client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Open returns a session on bucket. Commands borrow pooled connections from
// the client, so the session owns no connection of its own.
func (s *RedisStore) Open(ctx context.Context, bucket string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &redisSession{
		client: s.client,
		bucket: bucket,
		index:  s.prefix + ":" + bucket,
		seq:    s.prefix + "#revision",
	}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSession struct {
	client *redis.Client
	bucket string
	index  string
	seq    string
}

func (s *redisSession) entryKey(key string) string {
	return s.index + ":" + key
}

func decodeHash(key string, h map[string]string) (Entry, error) {
	if len(h) == 0 {
		return Entry{}, ErrNotFound
	}
	rev, err := strconv.ParseInt(h[fieldRevision], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("bad revision for %s: %w", key, err)
	}
	return Entry{Key: key, Value: []byte(h[fieldValue]), Revision: rev}, nil
}

func (s *redisSession) Get(ctx context.Context, key string) (Entry, error) {
	h, err := s.client.HGetAll(ctx, s.entryKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("get: %w", err)
	}
	return decodeHash(key, h)
}

func (s *redisSession) List(ctx context.Context) ([]Entry, error) {
	keys, err := s.client.SMembers(ctx, s.index).Result()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	sort.Strings(keys)

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, s.entryKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, k := range keys {
		e, err := decodeHash(k, cmds[i].Val())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *redisSession) Insert(ctx context.Context, key string, value []byte) (Entry, error) {
	ek := s.entryKey(key)
	var rev int64
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, ek).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrExists
			}
			rev, err = tx.Incr(ctx, s.seq).Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, ek, fieldValue, string(value), fieldRevision, rev)
				pipe.SAdd(ctx, s.index, key)
				return nil
			})
			return err
		}, ek)
		switch {
		case err == nil:
			return Entry{Key: key, Value: value, Revision: rev}, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrExists):
			return Entry{}, err
		default:
			return Entry{}, fmt.Errorf("insert: %w", err)
		}
	}
	return Entry{}, fmt.Errorf("insert %s: %w", key, redis.TxFailedErr)
}

// checkRevision fails with ErrNotFound or ErrRevisionMismatch unless the
// watched entry at ek holds revision.
func checkRevision(ctx context.Context, tx *redis.Tx, ek, key string, revision int64) error {
	raw, err := tx.HGet(ctx, ek, fieldRevision).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("bad revision for %s: %w", key, err)
	}
	if current != revision {
		return ErrRevisionMismatch
	}
	return nil
}

func (s *redisSession) CompareAndSwap(ctx context.Context, key string, revision int64, value []byte) (Entry, error) {
	ek := s.entryKey(key)
	var next int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := checkRevision(ctx, tx, ek, key, revision); err != nil {
			return err
		}
		var err error
		next, err = tx.Incr(ctx, s.seq).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, ek, fieldValue, string(value), fieldRevision, next)
			return nil
		})
		return err
	}, ek)
	switch {
	case err == nil:
		return Entry{Key: key, Value: value, Revision: next}, nil
	case errors.Is(err, redis.TxFailedErr):
		return Entry{}, ErrRevisionMismatch
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRevisionMismatch):
		return Entry{}, err
	default:
		return Entry{}, fmt.Errorf("swap: %w", err)
	}
}

func (s *redisSession) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.entryKey(key))
	pipe.SRem(ctx, s.index, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisSession) DeleteIf(ctx context.Context, key string, revision int64) error {
	ek := s.entryKey(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := checkRevision(ctx, tx, ek, key, revision); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, ek)
			pipe.SRem(ctx, s.index, key)
			return nil
		})
		return err
	}, ek)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrRevisionMismatch
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRevisionMismatch):
		return err
	default:
		return fmt.Errorf("delete: %w", err)
	}
}

func (s *redisSession) Close() error { return nil }
