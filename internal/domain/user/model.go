// Package user defines the user identity model.
package user

import "time"

// User is a registered member of the exchange. PasswordHash never leaves the
// service layer; API responses carry the Public projection instead.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Avatar       string    `json:"avatar,omitempty" db:"avatar"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Public is the subset of a user safe to embed in other users' views.
type Public struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// Public returns the shareable projection of u.
func (u User) Public() Public {
	return Public{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}
