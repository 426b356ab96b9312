package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-that-is-long-enough-for-hs256")

func TestTokenIssuer_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(secret, "postbox", time.Hour)

	token, expiresAt, err := issuer.Generate("session-1", "participant-1")
	req.NoError(err)
	req.NotEmpty(token)
	req.True(expiresAt.After(time.Now()))

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("session-1", claims.ID)
	req.Equal("participant-1", claims.ParticipantID)
	req.Equal("participant-1", claims.Subject)
	req.Equal("postbox", claims.Issuer)
}

func TestTokenIssuer_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	past := time.Now().Add(-2 * time.Hour)
	issuer := NewTokenIssuer(secret, "postbox", time.Hour).WithClock(func() time.Time { return past })

	token, _, err := issuer.Generate("session-1", "participant-1")
	req.NoError(err)

	_, err = NewTokenIssuer(secret, "postbox", time.Hour).Validate(token)
	req.Error(err)
	req.True(IsExpired(err))
}

func TestTokenIssuer_Rejects_Foreign_Tokens(t *testing.T) {
	issuer := NewTokenIssuer(secret, "postbox", time.Hour)
	token, _, err := issuer.Generate("session-1", "participant-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		validator *TokenIssuer
		token     string
	}{
		{"Other secret", NewTokenIssuer([]byte("another-secret-of-decent-length!!"), "postbox", time.Hour), token},
		{"Other issuer", NewTokenIssuer(secret, "someone-else", time.Hour), token},
		{"Garbage", issuer, "not-a-token"},
		{"Tampered", issuer, token[:strings.LastIndex(token, ".")] + ".AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.validator.Validate(tt.token)
			require.Error(t, err)
			require.False(t, IsExpired(err))
		})
	}
}

func TestTokenIssuer_Rejects_None_Algorithm(t *testing.T) {
	req := require.New(t)
	claims := &SessionClaims{
		ParticipantID: "participant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "session-1",
			Subject:   "participant-1",
			Issuer:    "postbox",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	_, err = NewTokenIssuer(secret, "postbox", time.Hour).Validate(unsigned)
	req.Error(err)
}

func TestTokenIssuer_Rejects_Incomplete_Claims(t *testing.T) {
	req := require.New(t)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "postbox",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	req.NoError(err)

	_, err = NewTokenIssuer(secret, "postbox", time.Hour).Validate(signed)
	req.ErrorIs(err, jwt.ErrTokenInvalidClaims)
}
