// Package repository stores users and projects as JSON documents in a kv.Store,
// one bucket per entity type.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/kv"
	"github.com/atinyakov/ProjectShelf/internal/models"
)

const usersBucket = "users"

// UserRepository is the credential store. Records are keyed by public id.
type UserRepository struct {
	store kv.Store
	locks *kv.KeyedMutex
}

// NewUserRepository creates a UserRepository on top of store.
func NewUserRepository(store kv.Store) *UserRepository {
	return &UserRepository{store: store, locks: kv.NewKeyedMutex()}
}

// translate maps storage sentinels onto the domain taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return fmt.Errorf("%w: %w", common.ErrNotFound, err)
	case errors.Is(err, kv.ErrExists):
		return fmt.Errorf("%w: %w", common.ErrConflict, err)
	default:
		return err
	}
}

// Create stores a new user. A public id that is already taken yields
// common.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	err = kv.Do(ctx, r.store, usersBucket, func(s kv.Session) error {
		_, err := s.Insert(ctx, user.PublicID, data)
		return err
	})
	return translate(err)
}

// Get returns the user with publicID or common.ErrNotFound.
func (r *UserRepository) Get(ctx context.Context, publicID string) (*models.User, error) {
	var user models.User
	err := kv.Do(ctx, r.store, usersBucket, func(s kv.Session) error {
		e, err := s.Get(ctx, publicID)
		if err != nil {
			return err
		}
		return json.Unmarshal(e.Value, &user)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// List returns every user ordered by public id.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	err := kv.Do(ctx, r.store, usersBucket, func(s kv.Session) error {
		entries, err := s.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			var u models.User
			if err := json.Unmarshal(e.Value, &u); err != nil {
				return fmt.Errorf("decode user %s: %w", e.Key, err)
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Update applies mutate to the stored user and persists the result.
// The public id cannot be changed by mutate.
func (r *UserRepository) Update(ctx context.Context, publicID string, mutate func(*models.User) error) (*models.User, error) {
	var updated models.User
	_, err := kv.Update(ctx, r.store, r.locks, usersBucket, publicID, func(cur []byte) ([]byte, error) {
		var u models.User
		if err := json.Unmarshal(cur, &u); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", publicID, err)
		}
		if err := mutate(&u); err != nil {
			return nil, err
		}
		u.PublicID = publicID
		updated = u
		return json.Marshal(u)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// Delete removes the user or returns common.ErrNotFound.
func (r *UserRepository) Delete(ctx context.Context, publicID string) error {
	err := kv.Do(ctx, r.store, usersBucket, func(s kv.Session) error {
		return s.Delete(ctx, publicID)
	})
	return translate(err)
}

// FindByUsername scans all users for name. The first match in public id
// order wins; uniqueness of user names is checked at registration only.
func (r *UserRepository) FindByUsername(ctx context.Context, name string) (*models.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].UserName == name {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", name, common.ErrNotFound)
}
