// Package kv defines the key-value storage contract used by the repositories
// and provides the helpers that scope storage handles to a single operation
// and sequence read-modify-write updates on the same key.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the key is absent from the bucket.
	ErrNotFound = errors.New("kv: key not found")
	// ErrExists is returned by Insert when the key is already present.
	ErrExists = errors.New("kv: key already exists")
	// ErrRevisionMismatch is returned by CompareAndSwap when the stored
	// revision differs from the expected one.
	ErrRevisionMismatch = errors.New("kv: revision mismatch")
	// ErrClosed is returned by a session used after Close.
	ErrClosed = errors.New("kv: session closed")
)

// MaxUpdateAttempts bounds the compare-and-swap retries of Update.
const MaxUpdateAttempts = 5

// Entry is a stored value together with its revision.
// Revisions come from a store-wide sequence: every insert and every swap
// takes a fresh one, so a key that is deleted and inserted again never
// gets back a revision it had before.
type Entry struct {
	Key      string
	Value    []byte
	Revision int64
}

// Session is a storage handle for one bucket. It stays valid until Close.
type Session interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// List returns every entry of the bucket ordered by key.
	List(ctx context.Context) ([]Entry, error)
	// Insert stores value under key if, and only if, the key is absent.
	Insert(ctx context.Context, key string, value []byte) (Entry, error)
	// CompareAndSwap replaces the value when the stored revision equals revision.
	CompareAndSwap(ctx context.Context, key string, revision int64, value []byte) (Entry, error)
	// Delete removes key or returns ErrNotFound.
	Delete(ctx context.Context, key string) error
	// DeleteIf removes key when the stored revision equals revision.
	DeleteIf(ctx context.Context, key string, revision int64) error
	// Close releases the handle.
	Close() error
}

// Store opens sessions on named buckets.
type Store interface {
	Open(ctx context.Context, bucket string) (Session, error)
	Close() error
}

// Do opens a session on bucket, runs fn and releases the session on every
// exit path, panics included.
func Do(ctx context.Context, store Store, bucket string, fn func(Session) error) (err error) {
	sess, err := store.Open(ctx, bucket)
	if err != nil {
		return fmt.Errorf("open %s: %w", bucket, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", bucket, cerr)
		}
	}()
	return fn(sess)
}

// Updater transforms the current value of a key into its next value.
type Updater func(current []byte) ([]byte, error)

// Update performs a read-modify-write of key. Writers inside this process
// are serialized by locks; writers holding other handles are detected by
// the revision check and the update is retried on the fresh value.
func Update(ctx context.Context, store Store, locks *KeyedMutex, bucket, key string, mutate Updater) (Entry, error) {
	unlock := locks.Lock(bucket + "/" + key)
	defer unlock()

	var result Entry
	err := Do(ctx, store, bucket, func(sess Session) error {
		for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			current, err := sess.Get(ctx, key)
			if err != nil {
				return err
			}
			next, err := mutate(current.Value)
			if err != nil {
				return err
			}
			result, err = sess.CompareAndSwap(ctx, key, current.Revision, next)
			if errors.Is(err, ErrRevisionMismatch) {
				continue
			}
			return err
		}
		return fmt.Errorf("update %s/%s: %w", bucket, key, ErrRevisionMismatch)
	})
	return result, err
}

// Guard inspects the current value of a key before it is removed.
type Guard func(current []byte) error

// Remove deletes key once guard accepts its current value. The check and
// the delete apply to the same revision: if the entry changes in between,
// guard runs again on the fresh value. A nil guard accepts everything.
func Remove(ctx context.Context, store Store, locks *KeyedMutex, bucket, key string, guard Guard) error {
	unlock := locks.Lock(bucket + "/" + key)
	defer unlock()

	return Do(ctx, store, bucket, func(sess Session) error {
		for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			current, err := sess.Get(ctx, key)
			if err != nil {
				return err
			}
			if guard != nil {
				if err := guard(current.Value); err != nil {
					return err
				}
			}
			err = sess.DeleteIf(ctx, key, current.Revision)
			if errors.Is(err, ErrRevisionMismatch) {
				continue
			}
			return err
		}
		return fmt.Errorf("remove %s/%s: %w", bucket, key, ErrRevisionMismatch)
	})
}
