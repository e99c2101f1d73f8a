// Package models defines the core data structures for users and projects.
package models

// User represents an account able to log in.
type User struct {
	// PublicID is the opaque, immutable identifier of the user.
	PublicID string `json:"public_id"`
	// UserName is the login name chosen at registration.
	UserName string `json:"user_name"`
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"password_hash"`
	// Admin grants access to user management.
	Admin bool `json:"admin"`
}

// UserView is the representation of a User returned by the API.
// It carries no password material.
type UserView struct {
	PublicID string `json:"public_id"`
	UserName string `json:"user_name"`
	Admin    bool   `json:"admin"`
}

// View strips the password hash from u.
func (u User) View() UserView {
	return UserView{PublicID: u.PublicID, UserName: u.UserName, Admin: u.Admin}
}

// Views converts a list of users.
func Views(users []User) []UserView {
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views
}

// Project is a record owned by exactly one user.
type Project struct {
	// Identifier is chosen by the caller and unique across all projects.
	Identifier string `json:"identifier"`
	// Name is the display name.
	Name string `json:"name"`
	// RepositoryLink points at the source repository.
	RepositoryLink string `json:"repository_link"`
	// Resources lists related links or notes, in order.
	Resources []string `json:"resources"`
	// Finished is set once by the owner.
	Finished bool `json:"finished"`
	// Owner is the PublicID of the creating user.
	Owner string `json:"owner_public_id"`
}
