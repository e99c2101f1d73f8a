// Package service holds the business rules for user management, login and
// owner-scoped projects, delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/atinyakov/ProjectShelf/internal/auth"
	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/models"
	"github.com/google/uuid"
)

// UserRepository defines the persistence operations
// required by the user service.
type UserRepository interface {
	// Create stores a new user. A taken public id yields common.ErrConflict.
	Create(ctx context.Context, user models.User) error
	// Get returns the user with publicID or common.ErrNotFound.
	Get(ctx context.Context, publicID string) (*models.User, error)
	// List returns every user.
	List(ctx context.Context) ([]models.User, error)
	// Update applies mutate to the stored user and saves the result.
	Update(ctx context.Context, publicID string, mutate func(*models.User) error) (*models.User, error)
	// Delete removes the user or returns common.ErrNotFound.
	Delete(ctx context.Context, publicID string) error
	// FindByUsername looks a user up by login name.
	FindByUsername(ctx context.Context, name string) (*models.User, error)
}

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	// Issue returns a signed token carrying publicID.
	Issue(publicID string) (string, error)
}

// ErrBadCredentials is returned by Login for an unknown user name and for a
// wrong password alike.
var ErrBadCredentials = fmt.Errorf("could not verify: %w", common.ErrUnauthorized)

// UserService implements user management and login.
type UserService struct {
	repo   UserRepository
	tokens TokenIssuer
	// newID generates public ids.
	newID func() string

	// registration serializes the user name check with the insert.
	registration sync.Mutex

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService constructs a UserService.
func NewUserService(repo UserRepository, tokens TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens, newID: uuid.NewString}
}

// List returns all users.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

// Create registers a regular user with a fresh public id.
func (s *UserService) Create(ctx context.Context, userName, password string) (*models.User, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return nil, fmt.Errorf("user_name and password are required: %w", common.ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.registration.Lock()
	defer s.registration.Unlock()

	_, err = s.repo.FindByUsername(ctx, userName)
	if err == nil {
		return nil, fmt.Errorf("user name %q is taken: %w", userName, common.ErrConflict)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	user := models.User{
		PublicID:     s.newID(),
		UserName:     userName,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Get returns the user with publicID.
func (s *UserService) Get(ctx context.Context, publicID string) (*models.User, error) {
	return s.repo.Get(ctx, publicID)
}

// Promote grants admin rights. Promoting an admin again is a no-op.
func (s *UserService) Promote(ctx context.Context, publicID string) (*models.User, error) {
	return s.repo.Update(ctx, publicID, func(u *models.User) error {
		u.Admin = true
		return nil
	})
}

// Delete removes the user. Tokens issued to it stop resolving.
func (s *UserService) Delete(ctx context.Context, publicID string) error {
	return s.repo.Delete(ctx, publicID)
}

// Login checks the credentials and issues a token. Every failure is
// reported as ErrBadCredentials.
func (s *UserService) Login(ctx context.Context, userName, password string) (string, error) {
	if userName == "" || password == "" {
		return "", ErrBadCredentials
	}
	user, err := s.repo.FindByUsername(ctx, userName)
	if errors.Is(err, common.ErrNotFound) {
		// Spend the same bcrypt time as a real comparison.
		auth.CheckPassword(password, s.dummy())
		return "", ErrBadCredentials
	}
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrBadCredentials
	}
	tok, err := s.tokens.Issue(user.PublicID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword(uuid.NewString())
	})
	return s.dummyHash
}

// EnsureAdmin makes sure an admin named userName exists, creating it with
// password when missing. An existing account keeps its password.
func (s *UserService) EnsureAdmin(ctx context.Context, userName, password string) (*models.User, error) {
	user, err := s.repo.FindByUsername(ctx, userName)
	if errors.Is(err, common.ErrNotFound) {
		user, err = s.Create(ctx, userName, password)
	}
	if err != nil {
		return nil, err
	}
	return s.Promote(ctx, user.PublicID)
}
