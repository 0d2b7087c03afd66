package models

import "time"

// LogType tags an account log entry.
type LogType string

const (
	LogSignup LogType = "signup"
	LogLogin  LogType = "login"
)

// LogEntry is an immutable record appended to Account.Logs.
type LogEntry struct {
	Type      LogType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Metadata is the profile part of an account.
type Metadata struct {
	Banner      *string `json:"banner"`
	Avatar      *string `json:"avatar"`
	Nickname    string  `json:"nickname"`
	Description *string `json:"description"`
	IsPrivate   bool    `json:"is_private"`
}

// DefaultMetadata returns the profile every new account starts with.
func DefaultMetadata(username string) Metadata {
	return Metadata{Nickname: username}
}

// Account links a provider user id to the memorable id.
type Account struct {
	ID        string
	UserID    string
	Username  string
	Logs      []LogEntry
	Metadata  Metadata
	CreatedAt time.Time
}

// NewAccount builds the row inserted on signup: default metadata and a
// single signup log entry.
func NewAccount(id, userID, username, sessionID string, now time.Time) *Account {
	return &Account{
		ID:       id,
		UserID:   userID,
		Username: username,
		Logs:     []LogEntry{{Type: LogSignup, Timestamp: now.UTC(), SessionID: sessionID}},
		Metadata: DefaultMetadata(username),
	}
}
