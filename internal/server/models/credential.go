package models

import "time"

// EncryptedCredential is the mirrored credential of one account. Payload is
// "<ivHex>:<cipherHex>".
type EncryptedCredential struct {
	AccountID string
	Payload   string
	UpdatedAt time.Time
}
