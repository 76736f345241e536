package models

import "time"

// Principal is an account that can log in.
type Principal struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Claims returns the identity snapshot carried by a session token.
// The credential hash is never part of it.
func (p *Principal) Claims() Claims {
	return Claims{ID: p.ID, Name: p.Name, Email: p.Email}
}

// Claims identifies the principal a session belongs to.
type Claims struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is a verified session token.
type Session struct {
	Claims
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registration is the raw input for creating or replacing a principal.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
