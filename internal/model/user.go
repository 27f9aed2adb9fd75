// Package model defines domain entities for the application.
package model

import "time"

// User is an account that can log in and own analysis history.
// Usernames are unique and compared case-sensitively.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the authenticated identity carried by a request.
// It is produced by verifying a session token.
type Session struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}
