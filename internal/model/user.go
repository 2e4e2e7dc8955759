// Package model defines domain entities for the application.
package model

import "time"

// User is an account holder. Credits are only changed through the ledger.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Credits      int64     `json:"credits"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthContext holds the authenticated request context.
// It is injected into the request context by the auth middleware.
type AuthContext struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
	User      *User
}
