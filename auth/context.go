package auth

import "context"

type contextKey string

const (
	participantIDKey contextKey = "participant_id"
	sessionIDKey     contextKey = "session_id"
)

// WithIdentity injects a resolved identity into the context for downstream services.
func WithIdentity(ctx context.Context, participantID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, participantIDKey, participantID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// ParticipantID returns the identity of the caller, if one was authenticated.
func ParticipantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(participantIDKey).(string)
	return id, ok && id != ""
}

func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}
