package errors

import "fmt"

var (
	ErrNotAuthenticated  = fmt.Errorf("not authenticated")
	ErrForbidden         = fmt.Errorf("forbidden: only the sender may change this message")
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidUsername   = fmt.Errorf("invalid username")
	ErrInvalidPassword   = fmt.Errorf("invalid password")
	ErrUsernameTaken     = fmt.Errorf("username already taken")
	ErrDuplicateUsername = fmt.Errorf("duplicate username")
	ErrRecipientNotFound = fmt.Errorf("recipient not found")
	ErrNoUnread          = fmt.Errorf("no unread messages")
	ErrNoMatches         = fmt.Errorf("no messages match")
	ErrNoActiveSession   = fmt.Errorf("no active session")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrMessageExists     = fmt.Errorf("message already exists")
	ErrTokenGeneration   = fmt.Errorf("token generation failed")
	ErrImmutableField    = fmt.Errorf("field cannot be changed")
)
