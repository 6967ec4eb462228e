package domain

import "time"

// User is the domain model for authenticated principals. Staff members are
// regular users with the IsStaff flag set.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the request-scoped view of a principal used by authorization.
type Actor struct {
	ID      string
	IsStaff bool
}

// Actor derives the authorization view of the user.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, IsStaff: u.IsStaff}
}
