package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(DefaultIterations)

	for _, pw := range []string{"Secreto123", "Planta2025_x", "ÑandúVerde9"} {
		stored, err := hasher.Hash(pw)
		require.NoError(t, err)

		salt, key, ok := strings.Cut(stored, ":")
		require.True(t, ok)
		assert.Len(t, salt, 32)
		assert.Len(t, key, 64)

		assert.True(t, hasher.Verify(pw, stored))
		assert.False(t, hasher.Verify(pw+"x", stored))
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	hasher := NewPasswordHasher(DefaultIterations)
	a, err := hasher.Hash("Secreto123")
	require.NoError(t, err)
	b, err := hasher.Hash("Secreto123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyMalformedStoredValue(t *testing.T) {
	hasher := NewPasswordHasher(DefaultIterations)
	for _, stored := range []string{"", "nocolon", ":abcd", "salt:", "salt:zz", "a:b:c"} {
		assert.False(t, hasher.Verify("Secreto123", stored), stored)
	}
}

func TestMinimumIterationsEnforced(t *testing.T) {
	assert.Equal(t, DefaultIterations, NewPasswordHasher(10).iterations)
	assert.Equal(t, 200000, NewPasswordHasher(200000).iterations)
}

func TestCheckPassword(t *testing.T) {
	assert.NoError(t, CheckPassword("Secreto123"))
	for _, pw := range []string{"Short1A", "todominuscula1", "TODOMAYUSCULA1", "SinDigitosAqui"} {
		assert.ErrorIs(t, CheckPassword(pw), ErrWeakPassword, pw)
	}
}

func TestCheckUsername(t *testing.T) {
	assert.NoError(t, CheckUsername("supervisor_1"))
	assert.NoError(t, CheckUsername(strings.Repeat("a", 50)))
	for _, u := range []string{"ab", strings.Repeat("a", 51), "con espacio", "guion-medio", ""} {
		assert.ErrorIs(t, CheckUsername(u), ErrInvalidUsername, u)
	}
}
