package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyBytes(t *testing.T) {
	key1, err := GenerateKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key1, KeySize)

	key2, err := GenerateKeyBytes()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestGeneratePassword(t *testing.T) {
	t.Run("respects requested length", func(t *testing.T) {
		for _, length := range []int{1, 16, 64, 255} {
			password, err := GeneratePassword(length)
			require.NoError(t, err)
			assert.Len(t, password, length)
		}
	})

	t.Run("uses only alphanumeric characters", func(t *testing.T) {
		password, err := GeneratePassword(128)
		require.NoError(t, err)

		for _, r := range password {
			assert.True(t, strings.ContainsRune(alphanumericChars, r))
		}
	})

	t.Run("rejects invalid lengths", func(t *testing.T) {
		for _, length := range []int{0, -1, 256} {
			_, err := GeneratePassword(length)
			assert.Error(t, err)
		}
	})
}

func TestZero(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zero(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)

	// Must not panic on nil or empty slices.
	Zero(nil)
	Zero([]byte{})
}
