// Package domain contains core concepts of the messaging system.
// This file defines Message records and the ownership rule.
package domain

import "time"

// Message is a persisted note from SenderID to RecipientID.
// SenderID is fixed at creation; Read only ever goes from false to true.
type Message struct {
	ID          string
	Title       string
	Body        string
	SenderID    string
	RecipientID string
	Read        bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// OwnedBy reports whether participantID is allowed to edit or delete the message.
func (m Message) OwnedBy(participantID string) bool {
	return participantID != "" && m.SenderID == participantID
}

// Draft carries the mutable part of a message, as supplied by a sender.
type Draft struct {
	Title       string
	Body        string
	RecipientID string
}
