package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery", 4)
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "correct horse battery"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}

func TestVerifyPasswordEmptyHash(t *testing.T) {
	// Phone-only accounts store no hash; nothing may match it.
	assert.False(t, VerifyPassword("", ""))
	assert.False(t, VerifyPassword("", "anything"))
}

func TestHashPasswordClampsBadCost(t *testing.T) {
	hash, err := HashPassword("pw", 99)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "pw"))
}
