// Package http provides HTTP routing and middleware configuration
// for the ProjectShelf service.
package http

import (
	"net/http"

	"github.com/atinyakov/ProjectShelf/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves
// the ProjectShelf API.
//
// Routes:
//
//	GET    /login          → authHandler.Login (HTTP Basic, public)
//	GET    /projects       → projectHandler.List
//	POST   /projects       → projectHandler.Create
//	GET    /projects/{id}  → projectHandler.Get
//	PUT    /projects/{id}  → projectHandler.Finish (owner)
//	DELETE /projects/{id}  → projectHandler.Delete (owner)
//	GET    /users          → userHandler.List (admin)
//	POST   /users          → userHandler.Create (admin)
//	GET    /users/{id}     → userHandler.Get (admin)
//	PUT    /users/{id}     → userHandler.Promote (admin)
//	DELETE /users/{id}     → userHandler.Delete (admin)
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. AllowContentType("application/json"), rejects non-JSON bodies
//  3. WithRequestLogging(logger)
//  4. tokenAuth on /projects and /users, AdminOnly on /users
func NewRouter(
	authHandler *AuthHandler,
	userHandler *UserHandler,
	projectHandler *ProjectHandler,
	tokenAuth func(http.Handler) http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/login", authHandler.Login)

	// Protected group: requires a valid token
	r.Group(func(r chi.Router) {
		r.Use(tokenAuth)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectHandler.List)
			r.Post("/", projectHandler.Create)
			r.Get("/{id}", projectHandler.Get)
			r.Put("/{id}", projectHandler.Finish)
			r.Delete("/{id}", projectHandler.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.AdminOnly)
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
			r.Get("/{id}", userHandler.Get)
			r.Put("/{id}", userHandler.Promote)
			r.Delete("/{id}", userHandler.Delete)
		})
	})

	return r
}
