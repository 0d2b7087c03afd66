package models

import "time"

// Identity is a user of the embedded auth provider.
type Identity struct {
	ID           string
	Email        string
	PasswordHash []byte
	Salt         []byte
	CreatedAt    time.Time
}
