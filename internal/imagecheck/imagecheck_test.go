package imagecheck

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illustrator-server/internal/models"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uniformImage(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// flatLumaImage рисует вертикальные полосы из 12 оттенков, у которых зелёный
// канал подобран так, чтобы Rec.601-яркость всех полос была одинаковой.
func flatLumaImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	const targetLuma = 128.0
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			hue := (x / 6) % 12
			r := hue * 20
			b := 220 - hue*18
			g := int((targetLuma - 0.299*float64(r) - 0.114*float64(b)) / 0.587)
			img.Set(x, y, color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
		}
	}
	return img
}

func noisyImage() *image.RGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func TestSniffFormat(t *testing.T) {
	t.Run("PNG", func(t *testing.T) {
		b := encodePNG(t, uniformImage(color.RGBA{R: 128, G: 128, B: 128, A: 255}))
		assert.Equal(t, FormatPNG, SniffFormat(b))
	})

	t.Run("JPEG", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, noisyImage(), nil))
		assert.Equal(t, FormatJPEG, SniffFormat(buf.Bytes()))
	})

	t.Run("WEBP requires RIFF container and WEBP tag", func(t *testing.T) {
		b := append([]byte("RIFF"), 0, 0, 0, 0)
		b = append(b, []byte("WEBP")...)
		b = append(b, make([]byte, 16)...)
		assert.Equal(t, FormatWEBP, SniffFormat(b))

		// RIFF без тега WEBP (например WAV) — не изображение
		wav := append([]byte("RIFF"), 0, 0, 0, 0)
		wav = append(wav, []byte("WAVE")...)
		assert.Equal(t, FormatUnknown, SniffFormat(wav))
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Equal(t, FormatUnknown, SniffFormat([]byte(`{"error":"bad request"}`)))
		assert.Equal(t, FormatUnknown, SniffFormat(nil))
	})
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/webp", FormatWEBP.ContentType())
	assert.Equal(t, "application/octet-stream", FormatUnknown.ContentType())
}

func TestAnalyze(t *testing.T) {
	t.Run("Uniform image is blank", func(t *testing.T) {
		b := encodePNG(t, uniformImage(color.RGBA{R: 200, G: 200, B: 200, A: 255}))
		stats, err := Analyze(b)
		require.NoError(t, err)
		assert.InDelta(t, 0, stats.LumaStdDev, 0.01)
		assert.Equal(t, 1, stats.UniqueColors)
		assert.True(t, stats.IsBlank())
	})

	t.Run("Noisy image is not blank", func(t *testing.T) {
		b := encodePNG(t, noisyImage())
		stats, err := Analyze(b)
		require.NoError(t, err)
		assert.Greater(t, stats.LumaStdDev, 5.0)
		assert.GreaterOrEqual(t, stats.UniqueColors, 10)
		assert.False(t, stats.IsBlank())
	})

	t.Run("Flat-luma image with many hues is blank", func(t *testing.T) {
		// Полосы разных оттенков, подобранных под одну и ту же яркость:
		// цветов много, но разброс яркости почти нулевой
		b := encodePNG(t, flatLumaImage())
		stats, err := Analyze(b)
		require.NoError(t, err)
		assert.Less(t, stats.LumaStdDev, 5.0)
		assert.GreaterOrEqual(t, stats.UniqueColors, 10)
		assert.True(t, stats.IsBlank())
	})

	t.Run("Fully transparent image is blank", func(t *testing.T) {
		b := encodePNG(t, uniformImage(color.RGBA{}))
		stats, err := Analyze(b)
		require.NoError(t, err)
		assert.True(t, stats.FullyTransparent)
		assert.True(t, stats.IsBlank())
	})

	t.Run("Garbage bytes", func(t *testing.T) {
		_, err := Analyze(bytes.Repeat([]byte{0xAB}, 512))
		assert.ErrorIs(t, err, models.ErrUnknownImage)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Good image passes", func(t *testing.T) {
		b := encodePNG(t, noisyImage())
		stats, err := Validate(b)
		require.NoError(t, err)
		assert.Equal(t, FormatPNG, stats.Format)
		assert.Equal(t, 64, stats.Width)
	})

	t.Run("Implausibly small body", func(t *testing.T) {
		_, err := Validate([]byte("oops"))
		assert.ErrorIs(t, err, models.ErrImageTooSmall)
	})

	t.Run("Unknown format rejected before decode", func(t *testing.T) {
		_, err := Validate(bytes.Repeat([]byte{0x00}, 1024))
		assert.ErrorIs(t, err, models.ErrUnknownImage)
	})

	t.Run("Blank image rejected with stats attached", func(t *testing.T) {
		// Градиент из двух оттенков одного цвета: формат валиден,
		// но разброс ниже порога
		img := uniformImage(color.RGBA{R: 100, G: 100, B: 100, A: 255})
		for x := 0; x < 64; x++ {
			img.Set(x, 0, color.RGBA{R: 101, G: 101, B: 101, A: 255})
		}
		b := encodePNG(t, img)
		if len(b) < MinPlausibleBytes {
			t.Skip("encoded fixture compressed below plausibility threshold")
		}
		stats, err := Validate(b)
		assert.ErrorIs(t, err, models.ErrBlankImage)
		require.NotNil(t, stats)
		assert.True(t, stats.IsBlank())
	})
}
