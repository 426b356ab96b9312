package domain

import (
	"fmt"
	"time"
)

// Session is an authenticated identity handed to one caller.
// Sessions live in memory only and are lost on restart.
type Session struct {
	ID            string
	ParticipantID string
	Token         string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Session Session
	Unread  int
}

// Summary renders the unread counter the way the console prints it.
func (r LoginResult) Summary() string {
	switch r.Unread {
	case 0:
		return "No new messages"
	case 1:
		return "You have 1 unread message"
	default:
		return fmt.Sprintf("You have %d unread messages", r.Unread)
	}
}
