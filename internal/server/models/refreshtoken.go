package models

import "time"

// RefreshToken is an opaque, server-stored refresh token of the embedded
// auth provider.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
