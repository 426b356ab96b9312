package services

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current instant. Services stamp records with it.
type Clock func() time.Time

// IDGenerator returns a fresh unique identifier.
type IDGenerator func() (string, error)

func UTCNow() time.Time {
	return time.Now().UTC()
}

// NewUUID returns a UUIDv7: ids sort by creation time, which keeps badger
// key order equal to insertion order.
func NewUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
