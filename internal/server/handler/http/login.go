package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/ProjectShelf/internal/common"
)

// LoginService checks credentials and issues tokens.
type LoginService interface {
	Login(ctx context.Context, userName, password string) (string, error)
}

// AuthHandler handles the login endpoint.
type AuthHandler struct {
	LoginService LoginService
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string `json:"token"`
}

const loginRealm = `Basic realm="Login required!"`

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", loginRealm)
	common.RespondWithError(w, http.StatusUnauthorized, "could not verify")
}

// Login handles GET /login with HTTP Basic credentials. Unknown users and
// wrong passwords receive the same challenge.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	userName, password, ok := r.BasicAuth()
	if !ok || userName == "" || password == "" {
		challenge(w)
		return
	}
	token, err := h.LoginService.Login(r.Context(), userName, password)
	if errors.Is(err, common.ErrUnauthorized) {
		challenge(w)
		return
	}
	if err != nil {
		common.RespondWithDomainError(w, err, "")
		return
	}
	common.RespondWithJSON(w, http.StatusOK, "Login successful", LoginResponse{Token: token})
}
