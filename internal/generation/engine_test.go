package generation

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
	"illustrator-server/internal/styles"
	"illustrator-server/internal/vision"
)

func goodImageBytes(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
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
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func blankImageBytes(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			// Шум в младшем бите: изображение остаётся визуально пустым,
			// но PNG не сжимается ниже порога правдоподобной длины
			v := uint8(120 + rng.Intn(2))
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	b := buf.Bytes()
	require.GreaterOrEqual(t, len(b), 256)
	return b
}

// fakeProvider выполняет сценарий из заранее заданных ответов по моделям.
type fakeProvider struct {
	name      string
	responses map[string][]byte
	errors    map[string]error
	calls     []GenerateParams
}

func (f *fakeProvider) Generate(_ context.Context, p GenerateParams) ([]byte, error) {
	f.calls = append(f.calls, p)
	if err, ok := f.errors[p.Model]; ok {
		return nil, err
	}
	return f.responses[p.Model], nil
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) MaxPromptLength() int { return 1500 }

func autoSelection(t *testing.T, category styles.Category) ModelSelection {
	t.Helper()
	sel, err := SelectModel("", category)
	require.NoError(t, err)
	return sel
}

func TestEngineGenerate(t *testing.T) {
	logger := zap.NewNop()
	good := goodImageBytes(t)

	t.Run("Success on primary model", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-base": good},
		}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, nil, 0, logger)

		res, err := engine.Generate(context.Background(), Request{
			Prompt:    "anime illustration, a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
			Intensity: 70,
		})
		require.NoError(t, err)
		assert.Equal(t, "sana-base", res.Model)
		assert.False(t, res.FallbackUsed)
		assert.Equal(t, good, res.Data)
		require.Len(t, diffusion.calls, 1)
		assert.Greater(t, diffusion.calls[0].Steps, 0)
	})

	t.Run("Fallback on invalid auto-selected model", func(t *testing.T) {
		diffusion := &fakeProvider{
			name: ProviderDiffusion,
			errors: map[string]error{
				"sana-base": &UpstreamError{Provider: ProviderDiffusion, Status: 404, Body: `{"error":"model sana-base not found"}`},
			},
		}
		openaiFake := &fakeProvider{
			name:      ProviderOpenAI,
			responses: map[string][]byte{FallbackModelID: good},
		}
		engine := NewEngine(map[string]Provider{
			ProviderDiffusion: diffusion,
			ProviderOpenAI:    openaiFake,
		}, nil, 0, logger)

		res, err := engine.Generate(context.Background(), Request{
			Prompt:    "anime illustration, a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
			Intensity: 70,
		})
		require.NoError(t, err)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, FallbackModelID, res.Model)
		assert.NotEmpty(t, res.Warnings)
	})

	t.Run("No fallback for explicit model", func(t *testing.T) {
		diffusion := &fakeProvider{
			name: ProviderDiffusion,
			errors: map[string]error{
				"sana-turbo": &UpstreamError{Provider: ProviderDiffusion, Status: 404, Body: `{"error":"unknown model"}`},
			},
		}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, nil, 0, logger)

		sel, err := SelectModel("sana-turbo", styles.CategoryAnime)
		require.NoError(t, err)
		_, err = engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: sel,
			Category:  styles.CategoryAnime,
		})
		require.Error(t, err)
		assert.Len(t, diffusion.calls, 1, "explicit model must not trigger fallback")
	})

	t.Run("No fallback on rate limit", func(t *testing.T) {
		diffusion := &fakeProvider{
			name: ProviderDiffusion,
			errors: map[string]error{
				"sana-base": &UpstreamError{Provider: ProviderDiffusion, Status: 429, Body: `{"error":"too many requests"}`},
			},
		}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, nil, 0, logger)

		_, err := engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
		})
		require.Error(t, err)
		assert.Equal(t, ReasonRateLimited, ClassifyError(err))
		assert.Len(t, diffusion.calls, 1)
	})

	t.Run("Blank image is terminal", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-base": blankImageBytes(t)},
		}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, nil, 0, logger)

		_, err := engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
		})
		assert.ErrorIs(t, err, models.ErrBlankImage)
	})

	t.Run("Turbo model params pinned", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-turbo": good},
		}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, nil, 0, logger)

		sel, err := SelectModel("sana-turbo", styles.CategoryAnime)
		require.NoError(t, err)
		_, err = engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: sel,
			Category:  styles.CategoryAnime,
			Intensity: 100,
		})
		require.NoError(t, err)
		require.Len(t, diffusion.calls, 1)
		assert.Equal(t, 4, diffusion.calls[0].Steps)
	})
}

// fakeCritic возвращает заранее заданные оценки по порядку вызовов.
type fakeCritic struct {
	scores []int
	calls  int
}

func (f *fakeCritic) CritiqueImage(context.Context, string, []byte) (*vision.Critique, error) {
	score := f.scores[f.calls%len(f.scores)]
	f.calls++
	return &vision.Critique{Score: score, Comment: "test"}, nil
}

func TestEngineCritique(t *testing.T) {
	logger := zap.NewNop()
	good := goodImageBytes(t)

	t.Run("High score keeps first image", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-base": good},
		}
		critic := &fakeCritic{scores: []int{90}}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, critic, 50, logger)

		res, err := engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
		})
		require.NoError(t, err)
		require.NotNil(t, res.CritiqueScore)
		assert.Equal(t, 90, *res.CritiqueScore)
		assert.Len(t, diffusion.calls, 1)
	})

	t.Run("Low score triggers exactly one regeneration", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-base": good},
		}
		critic := &fakeCritic{scores: []int{20}}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, critic, 50, logger)

		res, err := engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
		})
		require.NoError(t, err)
		assert.Len(t, diffusion.calls, 2)
		assert.Equal(t, 1, critic.calls, "critique runs once, not on the retry")
		assert.Contains(t, res.Warnings[len(res.Warnings)-1], "regenerated")
	})

	t.Run("Critique skipped when budget too low", func(t *testing.T) {
		diffusion := &fakeProvider{
			name:      ProviderDiffusion,
			responses: map[string][]byte{"sana-base": good},
		}
		critic := &fakeCritic{scores: []int{10}}
		engine := NewEngine(map[string]Provider{ProviderDiffusion: diffusion}, critic, 50, logger)

		res, err := engine.Generate(context.Background(), Request{
			Prompt:    "a castle",
			Selection: autoSelection(t, styles.CategoryAnime),
			Category:  styles.CategoryAnime,
			Deadline:  time.Now().Add(5 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, critic.calls)
		assert.Nil(t, res.CritiqueScore)
	})
}
