package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/middleware"
	"github.com/atinyakov/ProjectShelf/internal/models"
	"github.com/go-chi/chi/v5"
)

// ProjectService defines the project operations
// required by the ProjectHandler.
type ProjectService interface {
	// ListOwned returns the projects owned by caller.
	ListOwned(ctx context.Context, caller *models.User) ([]models.Project, error)
	// Create stores project with caller as owner.
	Create(ctx context.Context, caller *models.User, project models.Project) (*models.Project, error)
	// Get returns any project by identifier.
	Get(ctx context.Context, identifier string) (*models.Project, error)
	// Finish marks the project finished; owner only.
	Finish(ctx context.Context, caller *models.User, identifier string) (*models.Project, error)
	// Delete removes the project; owner only.
	Delete(ctx context.Context, caller *models.User, identifier string) error
}

// ProjectHandler serves the /projects endpoints.
type ProjectHandler struct {
	// ProjectService applies the ownership rules.
	ProjectService ProjectService
}

// CreateProjectRequest is the JSON payload for project creation.
// Pointer fields tell a missing field apart from a zero value.
type CreateProjectRequest struct {
	Identifier     *string   `json:"identifier"`
	Name           *string   `json:"name"`
	RepositoryLink *string   `json:"repository_link"`
	GitHub         *string   `json:"github"`
	Resources      *[]string `json:"resources"`
	Finished       *bool     `json:"finished"`
}

// project returns the record described by req or the name of the first
// missing field. The older "github" key is accepted for the link.
func (req CreateProjectRequest) project() (models.Project, string) {
	if req.RepositoryLink == nil {
		req.RepositoryLink = req.GitHub
	}
	switch {
	case req.Identifier == nil:
		return models.Project{}, "identifier"
	case req.Name == nil:
		return models.Project{}, "name"
	case req.RepositoryLink == nil:
		return models.Project{}, "repository_link"
	case req.Resources == nil:
		return models.Project{}, "resources"
	case req.Finished == nil:
		return models.Project{}, "finished"
	}
	return models.Project{
		Identifier:     *req.Identifier,
		Name:           *req.Name,
		RepositoryLink: *req.RepositoryLink,
		Resources:      *req.Resources,
		Finished:       *req.Finished,
	}, ""
}

func respondProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		common.RespondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, common.ErrForbidden):
		common.RespondWithError(w, http.StatusForbidden, "owner required")
	case errors.Is(err, common.ErrConflict):
		common.RespondWithError(w, http.StatusConflict, "Project already exists")
	case errors.Is(err, common.ErrValidation):
		common.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		common.RespondWithDomainError(w, err, err.Error())
	}
}

// caller returns the authenticated user or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, middleware.ReasonMissingToken)
	}
	return user, ok
}

// List handles GET /projects and returns the caller's projects only.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	projects, err := h.ProjectService.ListOwned(r.Context(), user)
	if err != nil {
		respondProjectError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "Success", projects)
}

// Create handles POST /projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	p, missing := req.project()
	if missing != "" {
		common.RespondWithError(w, http.StatusBadRequest, "missing required field: "+missing)
		return
	}
	created, err := h.ProjectService.Create(r.Context(), user, p)
	if err != nil {
		respondProjectError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, "Project added", created)
}

// Get handles GET /projects/{id}. Any authenticated caller may read.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.ProjectService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondProjectError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "Project found", p)
}

// Finish handles PUT /projects/{id}.
func (h *ProjectHandler) Finish(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	p, err := h.ProjectService.Finish(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		respondProjectError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "Project finished", p)
}

// Delete handles DELETE /projects/{id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.ProjectService.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		respondProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
