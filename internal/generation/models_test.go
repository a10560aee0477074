package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illustrator-server/internal/models"
	"illustrator-server/internal/styles"
)

func TestSelectModel(t *testing.T) {
	t.Run("Explicit model from allow-list", func(t *testing.T) {
		sel, err := SelectModel("sana-turbo", styles.CategoryAnime)
		require.NoError(t, err)
		assert.True(t, sel.Explicit)
		assert.Equal(t, "sana-turbo", sel.Spec.ID)
		assert.False(t, sel.CategoryMismatch)
	})

	t.Run("Explicit model outside allow-list", func(t *testing.T) {
		_, err := SelectModel("midjourney-v99", styles.CategoryAnime)
		assert.ErrorIs(t, err, models.ErrModelNotAllowed)
	})

	t.Run("Explicit model from another category flags mismatch", func(t *testing.T) {
		sel, err := SelectModel("gpt-image-1", styles.CategoryAnime)
		require.NoError(t, err)
		assert.True(t, sel.CategoryMismatch)
	})

	t.Run("Auto selection by category", func(t *testing.T) {
		sel, err := SelectModel("", styles.CategoryAnime)
		require.NoError(t, err)
		assert.False(t, sel.Explicit)
		assert.Equal(t, "sana-base", sel.Spec.ID)

		sel, err = SelectModel("", styles.CategoryPixel)
		require.NoError(t, err)
		assert.Equal(t, "sdxl-turbo", sel.Spec.ID)
	})

	t.Run("Unknown category falls back to default model", func(t *testing.T) {
		sel, err := SelectModel("", styles.Category(""))
		require.NoError(t, err)
		assert.Equal(t, defaultModelID, sel.Spec.ID)
	})
}

func TestAllowListConsistency(t *testing.T) {
	// Каждая предпочтительная модель обязана состоять в allow-list
	for category, id := range preferredByCategory {
		spec, ok := allowedModels[id]
		require.True(t, ok, "preferred model %s for %s not in allow-list", id, category)
		assert.Equal(t, category, spec.Category)
	}
	_, ok := allowedModels[FallbackModelID]
	assert.True(t, ok, "fallback model must be in allow-list")
}
