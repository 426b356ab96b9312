package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the suite fast; production uses DefaultParams.
var testParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	hasher := NewArgon2Hasher(testParams)
	password := "MyPassw0rdIsT00Strong!"

	hash, err := hasher.Hash(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))
	req.NotContains(hash, password)

	match, err := hasher.Compare(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = hasher.Compare("WrongPassword", hash)
	req.NoError(err)
	req.False(match)
}

func TestHash_Salts_Every_Call(t *testing.T) {
	req := require.New(t)
	hasher := NewArgon2Hasher(testParams)

	first, err := hasher.Hash("pw1")
	req.NoError(err)
	second, err := hasher.Hash("pw1")
	req.NoError(err)

	req.NotEqual(first, second)
}

func TestCompare_Uses_Stored_Parameters(t *testing.T) {
	req := require.New(t)
	old := NewArgon2Hasher(testParams)
	hash, err := old.Hash("pw1")
	req.NoError(err)

	// Given the service now hashes with other costs
	current := NewArgon2Hasher(Params{Memory: 2048, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	// Then old hashes still verify
	match, err := current.Compare("pw1", hash)
	req.NoError(err)
	req.True(match)
}

func TestCompare_Malformed_Hash(t *testing.T) {
	hasher := NewArgon2Hasher(testParams)
	tests := []struct {
		name string
		hash string
	}{
		{"Empty", ""},
		{"Wrong algorithm", "$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"Missing parts", "$argon2id$v=19$m=1024,t=1,p=1"},
		{"Bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA"},
		{"Bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			match, err := hasher.Compare("pw1", tt.hash)
			req.ErrorIs(err, ErrMalformedHash)
			req.False(match)
		})
	}
}

func BenchmarkHashPassword(b *testing.B) {
	hasher := NewArgon2Hasher(DefaultParams)
	for i := 0; i < b.N; i++ {
		_, _ = hasher.Hash("A-very-long-and-complex-password-for-bench-123!")
	}
}
