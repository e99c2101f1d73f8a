package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/models"
)

// ProjectRepository defines the persistence operations
// required by the project service.
type ProjectRepository interface {
	// Create stores a new project; a taken identifier yields common.ErrConflict.
	Create(ctx context.Context, project models.Project) error
	Get(ctx context.Context, identifier string) (*models.Project, error)
	ListByOwner(ctx context.Context, publicID string) ([]models.Project, error)
	// Update runs mutate on the stored project and saves the result atomically.
	Update(ctx context.Context, identifier string, mutate func(*models.Project) error) (*models.Project, error)
	// Delete removes the project if guard accepts the stored record.
	Delete(ctx context.Context, identifier string, guard func(*models.Project) error) error
}

// ProjectService implements the owner-scoped project rules.
type ProjectService struct {
	repo ProjectRepository
}

// NewProjectService constructs a ProjectService.
func NewProjectService(repo ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

// ListOwned returns the projects of caller. Admins see only their own too.
func (s *ProjectService) ListOwned(ctx context.Context, caller *models.User) ([]models.Project, error) {
	return s.repo.ListByOwner(ctx, caller.PublicID)
}

// Create stores project with caller as its owner. A taken identifier
// yields common.ErrConflict.
func (s *ProjectService) Create(ctx context.Context, caller *models.User, project models.Project) (*models.Project, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}
	if project.Resources == nil {
		project.Resources = []string{}
	}
	project.Owner = caller.PublicID
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("create project %q: %w", project.Identifier, err)
	}
	return &project, nil
}

func validateProject(p models.Project) error {
	switch {
	case strings.TrimSpace(p.Identifier) == "":
		return fmt.Errorf("identifier is required: %w", common.ErrValidation)
	case strings.Contains(p.Identifier, "/"):
		return fmt.Errorf("identifier must not contain '/': %w", common.ErrValidation)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("name is required: %w", common.ErrValidation)
	case strings.TrimSpace(p.RepositoryLink) == "":
		return fmt.Errorf("repository_link is required: %w", common.ErrValidation)
	}
	return nil
}

// Get returns any project by identifier. Ownership is not checked on read.
func (s *ProjectService) Get(ctx context.Context, identifier string) (*models.Project, error) {
	return s.repo.Get(ctx, identifier)
}

// Finish marks the project finished. Only the owner may do so; finishing
// twice is a no-op.
func (s *ProjectService) Finish(ctx context.Context, caller *models.User, identifier string) (*models.Project, error) {
	return s.repo.Update(ctx, identifier, func(p *models.Project) error {
		if p.Owner != caller.PublicID {
			return fmt.Errorf("project %q: %w", identifier, common.ErrForbidden)
		}
		p.Finished = true
		return nil
	})
}

// Delete removes the project. Only the owner may do so; ownership is
// checked against the very record that gets removed.
func (s *ProjectService) Delete(ctx context.Context, caller *models.User, identifier string) error {
	return s.repo.Delete(ctx, identifier, func(p *models.Project) error {
		if p.Owner != caller.PublicID {
			return fmt.Errorf("project %q: %w", identifier, common.ErrForbidden)
		}
		return nil
	})
}
