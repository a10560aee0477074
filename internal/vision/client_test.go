package vision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCritique(t *testing.T) {
	t.Run("Score with comment", func(t *testing.T) {
		c, err := parseCritique("SCORE=85 lighting does not match the night setting")
		require.NoError(t, err)
		assert.Equal(t, 85, c.Score)
		assert.Equal(t, "lighting does not match the night setting", c.Comment)
	})

	t.Run("Score only", func(t *testing.T) {
		c, err := parseCritique("  SCORE=100  ")
		require.NoError(t, err)
		assert.Equal(t, 100, c.Score)
		assert.Empty(t, c.Comment)
	})

	t.Run("Leading prose before score", func(t *testing.T) {
		c, err := parseCritique("Here is my verdict: SCORE=40 the character is missing")
		require.NoError(t, err)
		assert.Equal(t, 40, c.Score)
	})

	t.Run("Missing score", func(t *testing.T) {
		_, err := parseCritique("looks great to me")
		assert.Error(t, err)
	})

	t.Run("Non-numeric score", func(t *testing.T) {
		_, err := parseCritique("SCORE=high")
		assert.Error(t, err)
	})

	t.Run("Out of range", func(t *testing.T) {
		_, err := parseCritique("SCORE=150")
		assert.Error(t, err)
	})
}

func TestDataURL(t *testing.T) {
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...)
	url := dataURL(png)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	url = dataURL([]byte("not an image"))
	assert.True(t, strings.HasPrefix(url, "data:application/octet-stream;base64,"))
}
