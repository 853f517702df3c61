package models

import "time"

// Principal is the authenticated identity acting on the board.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// User is a registered account.
type User struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Principal returns the identity of the user.
func (u *User) Principal() Principal {
	return Principal{UID: u.UID, Email: u.Email}
}

// Session binds a token digest to a user.
type Session struct {
	TokenHash string
	UID       string
	CreatedAt time.Time
}
