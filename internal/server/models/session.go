package models

import "time"

// Session correlates repeated requests from one client via the sessionId
// cookie. IPAddresses only grows.
type Session struct {
	ID          string
	IPAddresses []string
	UserAgent   string
	CreatedAt   time.Time
}
