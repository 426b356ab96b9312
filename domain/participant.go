// Package domain contains core concepts of the messaging system.
// This file defines Participant entities and their public projection.
// No storage, network, or UI logic should be added here.
package domain

import "time"

// Participant is the stored account record. PasswordHash never leaves the
// service layer; callers receive a ParticipantView instead.
type Participant struct {
	ID           string
	Username     string
	PasswordHash string
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// ParticipantView is the redacted projection of a Participant.
type ParticipantView struct {
	ID        string
	Username  string
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func (p Participant) View() ParticipantView {
	return ParticipantView{
		ID:        p.ID,
		Username:  p.Username,
		LastLogin: p.LastLogin,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
