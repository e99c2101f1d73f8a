// Package http provides the HTTP handlers and router of the ProjectShelf API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/models"
	"github.com/go-chi/chi/v5"
)

// UserService defines the user management operations
// required by the UserHandler.
type UserService interface {
	// List returns every account.
	List(ctx context.Context) ([]models.User, error)
	// Create registers a non-admin account.
	Create(ctx context.Context, userName, password string) (*models.User, error)
	// Get returns the account with publicID.
	Get(ctx context.Context, publicID string) (*models.User, error)
	// Promote grants admin rights; promoting an admin again is a no-op.
	Promote(ctx context.Context, publicID string) (*models.User, error)
	// Delete removes the account.
	Delete(ctx context.Context, publicID string) error
}

// UserHandler serves the admin-only /users endpoints.
type UserHandler struct {
	// UserService carries out the account operations.
	UserService UserService
}

// CreateUserRequest is the JSON payload for user registration.
type CreateUserRequest struct {
	// UserName is the login name; it must be unique.
	UserName string `json:"user_name"`
	// Password is hashed before it is stored.
	Password string `json:"password"`
}

func respondUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		common.RespondWithError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, common.ErrConflict):
		common.RespondWithError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, common.ErrValidation):
		common.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		common.RespondWithDomainError(w, err, err.Error())
	}
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.List(r.Context())
	if err != nil {
		respondUserError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "Success", models.Views(users))
}

// Create handles POST /users. The response never contains the password hash.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	user, err := h.UserService.Create(r.Context(), req.UserName, req.Password)
	if err != nil {
		respondUserError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, "User added", user.View())
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.UserService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondUserError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "User found", user.View())
}

// Promote handles PUT /users/{id}.
func (h *UserHandler) Promote(w http.ResponseWriter, r *http.Request) {
	user, err := h.UserService.Promote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondUserError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "User promoted", user.View())
}

// Delete handles DELETE /users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.UserService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondUserError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
