package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illustrator-server/internal/models"
)

func TestGet(t *testing.T) {
	t.Run("Known style", func(t *testing.T) {
		s, err := Get("anime")
		require.NoError(t, err)
		assert.Equal(t, "anime", s.ID)
		assert.Equal(t, CategoryAnime, s.Category)
		assert.NotEmpty(t, s.Prefix)
	})

	t.Run("None and empty are valid", func(t *testing.T) {
		for _, id := range []string{"", StyleNone} {
			s, err := Get(id)
			require.NoError(t, err)
			assert.Equal(t, StyleNone, s.ID)
		}
	})

	t.Run("Unknown style", func(t *testing.T) {
		_, err := Get("vaporwave")
		assert.ErrorIs(t, err, models.ErrUnknownStyle)
		assert.False(t, IsKnown("vaporwave"))
	})
}

func TestMarkers(t *testing.T) {
	s, err := Get("pixel_art")
	require.NoError(t, err)

	markers := s.Markers()
	assert.Contains(t, markers, "pixel art scene") // префикс без завершающей запятой
	assert.Contains(t, markers, "Pixel Art")       // отображаемое имя
	assert.Contains(t, markers, "pixel art")       // id с пробелами

	none, _ := Get(StyleNone)
	assert.Empty(t, none.Markers())
}

func TestPositiveWithout(t *testing.T) {
	s, err := Get("anime")
	require.NoError(t, err)

	full := s.PositiveWithout(nil)
	assert.Contains(t, full, "cel shading")
	assert.Contains(t, full, "speedlines")

	filtered := s.PositiveWithout([]string{"Speedlines", " sparkles "})
	assert.Contains(t, filtered, "cel shading")
	assert.NotContains(t, filtered, "speedlines")
	assert.NotContains(t, filtered, "sparkles")
}

func TestBand(t *testing.T) {
	cases := []struct {
		intensity int
		want      IntensityBand
	}{
		{0, BandMinimal},
		{10, BandMinimal},
		{11, BandSubtle},
		{35, BandSubtle},
		{50, BandModerate},
		{70, BandStrong},
		{90, BandStrong},
		{91, BandMaximal},
		{100, BandMaximal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Band(c.intensity), "intensity %d", c.intensity)
	}
}

func TestParamsFor(t *testing.T) {
	t.Run("Steps and guidance grow with intensity", func(t *testing.T) {
		low := ParamsFor(CategoryAnime, 5, "some-model")
		high := ParamsFor(CategoryAnime, 95, "some-model")
		assert.Less(t, low.Steps, high.Steps)
		assert.Less(t, low.GuidanceScale, high.GuidanceScale)
	})

	t.Run("Turbo model pins params regardless of intensity", func(t *testing.T) {
		require.True(t, IsTurboModel("sana-turbo"))
		for _, intensity := range []int{0, 50, 100} {
			p := ParamsFor(CategoryAnime, intensity, "sana-turbo")
			assert.Equal(t, 4, p.Steps)
			assert.InDelta(t, 1.5, p.GuidanceScale, 0.001)
		}
	})

	t.Run("Unknown category falls back to defaults", func(t *testing.T) {
		p := ParamsFor(Category("unknown"), 70, "some-model")
		assert.Equal(t, defaultParams[BandStrong], p)
	})
}

func TestGuidanceText(t *testing.T) {
	for _, band := range []IntensityBand{BandMinimal, BandSubtle, BandModerate, BandStrong, BandMaximal} {
		text := band.GuidanceText("Anime")
		assert.NotEmpty(t, text)
		assert.True(t, strings.Contains(text, "Anime"), "band %s", band)
	}
}
