package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/ProjectShelf/internal/kv"
	"github.com/atinyakov/ProjectShelf/internal/models"
)

const projectsBucket = "projects"

// ProjectRepository is the project store. Records are keyed by identifier.
type ProjectRepository struct {
	store kv.Store
	locks *kv.KeyedMutex
}

// NewProjectRepository creates a ProjectRepository on top of store.
func NewProjectRepository(store kv.Store) *ProjectRepository {
	return &ProjectRepository{store: store, locks: kv.NewKeyedMutex()}
}

// Create stores project under its identifier. An identifier already in use
// yields common.ErrConflict and the stored record is left untouched.
func (r *ProjectRepository) Create(ctx context.Context, project models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	err = kv.Do(ctx, r.store, projectsBucket, func(s kv.Session) error {
		_, err := s.Insert(ctx, project.Identifier, data)
		return err
	})
	return translate(err)
}

// Get returns the project or common.ErrNotFound.
func (r *ProjectRepository) Get(ctx context.Context, identifier string) (*models.Project, error) {
	var project models.Project
	err := kv.Do(ctx, r.store, projectsBucket, func(s kv.Session) error {
		e, err := s.Get(ctx, identifier)
		if err != nil {
			return err
		}
		return json.Unmarshal(e.Value, &project)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

// List returns every project ordered by identifier.
func (r *ProjectRepository) List(ctx context.Context) ([]models.Project, error) {
	return r.list(ctx, func(models.Project) bool { return true })
}

// ListByOwner returns the projects owned by publicID.
func (r *ProjectRepository) ListByOwner(ctx context.Context, publicID string) ([]models.Project, error) {
	return r.list(ctx, func(p models.Project) bool { return p.Owner == publicID })
}

func (r *ProjectRepository) list(ctx context.Context, keep func(models.Project) bool) ([]models.Project, error) {
	projects := make([]models.Project, 0)
	err := kv.Do(ctx, r.store, projectsBucket, func(s kv.Session) error {
		entries, err := s.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			var p models.Project
			if err := json.Unmarshal(e.Value, &p); err != nil {
				return fmt.Errorf("decode project %s: %w", e.Key, err)
			}
			if keep(p) {
				projects = append(projects, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// Update applies mutate to the stored project and persists the result.
// The identifier cannot be changed by mutate.
func (r *ProjectRepository) Update(ctx context.Context, identifier string, mutate func(*models.Project) error) (*models.Project, error) {
	var updated models.Project
	_, err := kv.Update(ctx, r.store, r.locks, projectsBucket, identifier, func(cur []byte) ([]byte, error) {
		var p models.Project
		if err := json.Unmarshal(cur, &p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", identifier, err)
		}
		if err := mutate(&p); err != nil {
			return nil, err
		}
		p.Identifier = identifier
		updated = p
		return json.Marshal(p)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// Delete removes the project or returns common.ErrNotFound. When guard is
// set it sees the stored project first and its error aborts the delete.
// The project guard accepted is the one removed.
func (r *ProjectRepository) Delete(ctx context.Context, identifier string, guard func(*models.Project) error) error {
	err := kv.Remove(ctx, r.store, r.locks, projectsBucket, identifier, func(cur []byte) error {
		if guard == nil {
			return nil
		}
		var p models.Project
		if err := json.Unmarshal(cur, &p); err != nil {
			return fmt.Errorf("decode project %s: %w", identifier, err)
		}
		return guard(&p)
	})
	return translate(err)
}
