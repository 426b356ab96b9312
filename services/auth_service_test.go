package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"postbox/auth"
	"postbox/domain"
	perrors "postbox/errors"
	"postbox/mocks"
	"postbox/observability"
	"postbox/runtime"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Login_Unknown_Username(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.auth.Login(context.Background(), "ghost", "whatever")

	req.ErrorIs(err, perrors.ErrInvalidUsername)
	req.Zero(f.registry.Count())
	req.Equal(uint64(1), f.monitor.Count(observability.OpLoginFailed))
}

func TestAuthService_Login_Wrong_Password_Opens_No_Session(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.register(t, "alice")

	_, err := f.auth.Login(context.Background(), "alice", "not-her-password")

	req.ErrorIs(err, perrors.ErrInvalidPassword)
	req.Zero(f.registry.Count())
	alice, err := f.participants.FindByUsername("alice")
	req.NoError(err)
	req.Nil(alice.LastLogin)
}

func TestAuthService_Login_Stamps_Last_Login(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	id := f.register(t, "alice")
	f.clock.Advance(time.Minute)

	result, err := f.auth.Login(context.Background(), "alice", "alice-pw")
	req.NoError(err)

	req.Equal(id, result.Session.ParticipantID)
	req.NotEmpty(result.Session.Token)
	req.Equal(f.clock.Now().Add(time.Hour), result.Session.ExpiresAt)
	req.Equal(0, result.Unread)
	req.Equal("No new messages", result.Summary())
	req.Equal(1, f.registry.Count())

	alice, err := f.participants.Get(id)
	req.NoError(err)
	req.NotNil(alice.LastLogin)
	req.Equal(f.clock.Now(), *alice.LastLogin)
	req.Equal(alice.LastLogin, alice.UpdatedAt)
}

func TestAuthService_Authenticate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	id := f.register(t, "alice")

	result, err := f.auth.Login(context.Background(), "alice", "alice-pw")
	req.NoError(err)

	ctx, err := f.auth.Authenticate(context.Background(), result.Session.Token)
	req.NoError(err)
	participantID, ok := auth.ParticipantID(ctx)
	req.True(ok)
	req.Equal(id, participantID)
	sessionID, ok := auth.SessionID(ctx)
	req.True(ok)
	req.Equal(result.Session.ID, sessionID)

	tests := []struct {
		name  string
		token string
	}{
		{name: "Empty token", token: ""},
		{name: "Garbage token", token: "not.a.jwt"},
		{name: "Token signed with another secret", token: foreignToken(t, result.Session.ID, id)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Authenticate(context.Background(), tt.token)
			req.ErrorIs(err, perrors.ErrNotAuthenticated)
		})
	}
}

func foreignToken(t *testing.T, sessionID, participantID string) string {
	t.Helper()
	token, _, err := auth.NewTokenIssuer([]byte("other-secret"), "postbox-test", time.Hour).
		Generate(sessionID, participantID)
	require.NoError(t, err)
	return token
}

func TestAuthService_Session_Expires(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.register(t, "alice")

	result, err := f.auth.Login(context.Background(), "alice", "alice-pw")
	req.NoError(err)

	// When the token lifetime is over
	f.clock.Advance(time.Hour)

	// Then the token no longer authenticates and cannot be logged out
	_, err = f.auth.Authenticate(context.Background(), result.Session.Token)
	req.ErrorIs(err, perrors.ErrNotAuthenticated)
	req.ErrorIs(f.auth.Logout(context.Background(), result.Session.Token), perrors.ErrNoActiveSession)
}

func TestAuthService_Logout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.register(t, "alice")

	result, err := f.auth.Login(context.Background(), "alice", "alice-pw")
	req.NoError(err)

	// Given a first logout succeeds
	req.NoError(f.auth.Logout(context.Background(), result.Session.Token))
	req.Zero(f.registry.Count())

	// Then the token is dead
	_, err = f.auth.Authenticate(context.Background(), result.Session.Token)
	req.ErrorIs(err, perrors.ErrNotAuthenticated)

	// And a second logout reports no active session
	req.ErrorIs(f.auth.Logout(context.Background(), result.Session.Token), perrors.ErrNoActiveSession)
	req.ErrorIs(f.auth.Logout(context.Background(), ""), perrors.ErrNoActiveSession)
	req.Equal(uint64(1), f.monitor.Count(observability.OpLogout))
}

func TestAuthService_Sessions_Are_Per_Caller(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	aliceID := f.register(t, "alice")
	bobID := f.register(t, "bob")

	// Given alice and bob are logged in at the same time
	aliceCtx := f.loginAs(t, "alice")
	bobCtx := f.loginAs(t, "bob")
	req.Equal(2, f.registry.Count())

	// Then each context carries its own identity
	id, _ := auth.ParticipantID(aliceCtx)
	req.Equal(aliceID, id)
	id, _ = auth.ParticipantID(bobCtx)
	req.Equal(bobID, id)
}

func TestAuthService_LogoutEverywhere(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.register(t, "alice")
	f.register(t, "bob")

	first, err := f.auth.Login(context.Background(), "alice", "alice-pw")
	req.NoError(err)
	aliceCtx := f.loginAs(t, "alice")
	bobCtx := f.loginAs(t, "bob")

	closed, err := f.auth.LogoutEverywhere(aliceCtx)
	req.NoError(err)
	req.Equal(2, closed)

	// Alice's sessions are gone, bob's is untouched
	_, err = f.auth.Authenticate(context.Background(), first.Session.Token)
	req.ErrorIs(err, perrors.ErrNotAuthenticated)
	req.Equal(1, f.registry.Count())
	_, err = f.messaging.MyUnread(bobCtx)
	req.ErrorIs(err, perrors.ErrNoUnread)

	_, err = f.auth.LogoutEverywhere(context.Background())
	req.ErrorIs(err, perrors.ErrNotAuthenticated)
}

func TestAuthService_Login_Storage_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	participants := mocks.NewMockIParticipantRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)
	hasher := auth.NewArgon2Hasher(fastParams)
	hash, err := hasher.Hash("secret")
	req.NoError(err)

	svc := NewAuthService(log, participants, messages, hasher,
		auth.NewTokenIssuer([]byte("s"), "postbox-test", time.Hour), runtime.NewRegistry(nil), nil)

	diskFailure := errors.New("disk failure")
	alice := domain.Participant{ID: "alice-id", Username: "alice", PasswordHash: hash}

	// Given the unread counter cannot be read
	participants.EXPECT().FindByUsername("alice").Return(alice, nil)
	messages.EXPECT().CountUnreadFor("alice-id").Return(0, diskFailure)

	// Then login fails without stamping the participant
	_, err = svc.Login(context.Background(), "alice", "secret")
	req.ErrorIs(err, diskFailure)

	// Given the username lookup itself fails
	participants.EXPECT().FindByUsername("alice").Return(domain.Participant{}, diskFailure)

	// Then the failure is not mistaken for an unknown username
	_, err = svc.Login(context.Background(), "alice", "secret")
	req.ErrorIs(err, diskFailure)
	req.NotErrorIs(err, perrors.ErrInvalidUsername)
}
