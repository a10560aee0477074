package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"illustrator-server/internal/credits"
	"illustrator-server/internal/generation"
	"illustrator-server/internal/messaging"
	"illustrator-server/internal/models"
	"illustrator-server/internal/repository/mocks"
	"illustrator-server/internal/storage"
)

func testImageBytes(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
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

// stubProvider отвечает одними и теми же данными или ошибкой на любую модель.
type stubProvider struct {
	name string
	data []byte
	err  error
}

func (p *stubProvider) Generate(context.Context, generation.GenerateParams) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}
func (p *stubProvider) Name() string         { return p.name }
func (p *stubProvider) MaxPromptLength() int { return 1500 }

// capturePublisher запоминает опубликованные события.
type capturePublisher struct {
	mu     sync.Mutex
	events []messaging.GenerationEvent
}

func (c *capturePublisher) PublishGenerationEvent(_ context.Context, event messaging.GenerationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}
func (c *capturePublisher) Close() error { return nil }

type fixture struct {
	svc       *IllustrationService
	stories   *mocks.StoryRepository
	scenes    *mocks.SceneRepository
	chars     *mocks.CharacterRepository
	attempts  *mocks.AttemptRepository
	ledger    *credits.MemoryLedger
	blobs     *storage.MemoryBlobStore
	publisher *capturePublisher

	userID  uuid.UUID
	storyID uuid.UUID
	sceneID uuid.UUID
	scene   *models.Scene
	story   *models.Story
}

func newFixture(t *testing.T, provider generation.Provider) *fixture {
	t.Helper()
	f := &fixture{
		stories:   new(mocks.StoryRepository),
		scenes:    new(mocks.SceneRepository),
		chars:     new(mocks.CharacterRepository),
		attempts:  new(mocks.AttemptRepository),
		ledger:    credits.NewMemoryLedger(),
		blobs:     storage.NewMemoryBlobStore(),
		publisher: &capturePublisher{},
		userID:    uuid.New(),
		storyID:   uuid.New(),
		sceneID:   uuid.New(),
	}
	f.ledger.SeedAccount(f.userID, 5, 0)

	f.story = &models.Story{ID: f.storyID, UserID: f.userID, Title: "Test Story", ArtStyle: "anime"}
	f.scene = &models.Scene{
		ID:             f.sceneID,
		StoryID:        f.storyID,
		SceneNumber:    1,
		ImagePrompt:    "Alice enters the throne room",
		CharacterNames: []string{"Alice"},
		CharacterStates: map[string]models.AppearanceSnapshot{
			"Alice": {Clothing: "red cloak", PhysicalAttributes: "tall"},
		},
		GenerationStatus: models.GenerationStatusPending,
	}

	f.stories.On("GetByID", mock.Anything, f.storyID).Return(f.story, nil)
	f.scenes.On("GetByID", mock.Anything, f.sceneID).Return(f.scene, nil)
	f.scenes.On("ListByStoryAscending", mock.Anything, f.storyID).Return([]*models.Scene{f.scene}, nil)
	f.chars.On("ListByStory", mock.Anything, f.storyID).Return([]*models.Character{
		{StoryID: f.storyID, Name: "Alice", DefaultClothing: "plain dress", PhysicalAttributes: "tall"},
	}, nil)
	f.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.attempts.On("Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	engine := generation.NewEngine(map[string]generation.Provider{
		generation.ProviderDiffusion: provider,
		generation.ProviderOpenAI:    provider,
	}, nil, 0, zap.NewNop())

	f.svc = NewIllustrationService(Deps{
		Stories:    f.stories,
		Scenes:     f.scenes,
		Characters: f.chars,
		Attempts:   f.attempts,
		Ledger:     f.ledger,
		Engine:     engine,
		Blobs:      f.blobs,
		Publisher:  f.publisher,
	}, Config{GenerationCost: 1}, zap.NewNop())
	return f
}

func TestGenerateIllustrationSuccess(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})
	f.scenes.On("UpdateGenerationStatus", mock.Anything, f.sceneID, models.GenerationStatusGenerating, mock.Anything).Return(nil)
	f.scenes.On("SetCompleted", mock.Anything, f.sceneID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	outcome, err := f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
		StrictStyle:    true,
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	// Автовыбор модели по категории anime
	assert.Equal(t, "sana-base", outcome.Model)
	assert.Contains(t, outcome.Prompt, "anime")
	assert.NotEmpty(t, outcome.ImageURL)
	assert.NotEmpty(t, outcome.PromptHash)
	require.NotNil(t, outcome.Credits)
	assert.Equal(t, int64(4), *outcome.Credits)

	// Ровно одно usage-списание на request_id
	requestID, parseErr := uuid.Parse(outcome.RequestID)
	require.NoError(t, parseErr)
	usages := 0
	for _, tx := range f.ledger.Transactions(f.userID, requestID) {
		if tx.TransactionType == models.TransactionUsage {
			usages++
		}
	}
	assert.Equal(t, 1, usages)

	assert.Equal(t, 1, f.blobs.Len())
	require.Len(t, f.publisher.events, 1)
	assert.True(t, f.publisher.events[0].Success)
	f.scenes.AssertCalled(t, "SetCompleted", mock.Anything, f.sceneID, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateIllustrationUpstream402(t *testing.T) {
	f := newFixture(t, &stubProvider{
		name: generation.ProviderDiffusion,
		err:  &generation.UpstreamError{Provider: generation.ProviderDiffusion, Status: 402, Body: `{"error":"quota exceeded"}`},
	})
	f.scenes.On("UpdateGenerationStatus", mock.Anything, f.sceneID, models.GenerationStatusGenerating, mock.Anything).Return(nil)
	f.scenes.On("SetError", mock.Anything, f.sceneID, mock.Anything, mock.Anything).Return(nil)

	before, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)

	_, err = f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
	})
	require.Error(t, err)

	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, models.StageUpstreamGeneration, pipeErr.Stage)
	assert.Equal(t, http.StatusPaymentRequired, pipeErr.Status)

	// Резерв полностью возвращён: баланс как до запроса
	after, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	f.scenes.AssertCalled(t, "SetError", mock.Anything, f.sceneID, mock.Anything, mock.Anything)
	require.Len(t, f.publisher.events, 1)
	assert.False(t, f.publisher.events[0].Success)
	assert.Equal(t, models.StageUpstreamGeneration, f.publisher.events[0].Stage)
}

func TestGenerateIllustrationInsufficientCredits(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})

	// Съедаем весь баланс чужими резервами
	for i := 0; i < 5; i++ {
		_, err := f.ledger.Reserve(context.Background(), f.userID, uuid.New(), 1, credits.FeatureIllustration, nil)
		require.NoError(t, err)
	}

	_, err := f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
	})
	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, models.StageCreditsReservation, pipeErr.Stage)
	assert.Equal(t, http.StatusPaymentRequired, pipeErr.Status)

	// Сцена не тронута: отказ произошёл до каких-либо побочных эффектов
	f.scenes.AssertNotCalled(t, "UpdateGenerationStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.scenes.AssertNotCalled(t, "SetError", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Аудиторская запись закрыта как failed, а не висит в started
	f.attempts.AssertCalled(t, "Finalize",
		mock.Anything, mock.Anything, models.AttemptFailed, int64(0), string(models.StageCreditsReservation))
}

func TestGenerateIllustrationDuplicateRequestFinalizesAttempt(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})
	requestID := uuid.New()

	// Журнал уже видел usage по этому request_id: повтор терминален
	_, err := f.ledger.Consume(context.Background(), f.userID, requestID, 1, credits.FeatureIllustration, nil)
	require.NoError(t, err)

	_, err = f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:         f.sceneID,
		StyleIntensity:  70,
		ClientRequestID: requestID,
	})
	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, models.StageCreditsReservation, pipeErr.Stage)
	assert.Equal(t, http.StatusConflict, pipeErr.Status)

	f.attempts.AssertCalled(t, "Finalize",
		mock.Anything, mock.Anything, models.AttemptFailed, int64(0), string(models.StageCreditsReservation))
}

func TestGenerateIllustrationStrictStyleRejectedBeforeReserve(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})

	before, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)

	_, err = f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:         f.sceneID,
		ForceFullPrompt: "a plain photo of a street with no styling at all",
		StyleIntensity:  70,
		StrictStyle:     true,
	})
	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, models.StageStyleValidation, pipeErr.Stage)
	assert.ErrorIs(t, err, models.ErrStyleNotApplied)

	// Кредиты не резервировались
	after, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGenerateIllustrationPromptOnly(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})

	outcome, err := f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
		StrictStyle:    true,
		PromptOnly:     true,
	})
	require.NoError(t, err)
	assert.True(t, outcome.PromptOnly)
	assert.Contains(t, outcome.Prompt, "anime")
	assert.Contains(t, outcome.Prompt, "Alice")

	// Ни провайдер, ни хранилище, ни леджер не затронуты
	assert.Equal(t, 0, f.blobs.Len())
	available, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), available)
	f.scenes.AssertNotCalled(t, "UpdateGenerationStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateIllustrationOwnership(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})

	outsider := uuid.New()
	_, err := f.svc.GenerateIllustration(context.Background(), outsider, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
	})
	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, http.StatusForbidden, pipeErr.Status)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

// failingCommitLedger пропускает всё, кроме Commit.
type failingCommitLedger struct {
	credits.Ledger
}

func (l *failingCommitLedger) Commit(context.Context, uuid.UUID, uuid.UUID, map[string]any) (*credits.CommitResult, error) {
	return nil, errors.New("ledger connection lost")
}

func TestGenerateIllustrationCommitFailureRollsBack(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})
	f.scenes.On("UpdateGenerationStatus", mock.Anything, f.sceneID, models.GenerationStatusGenerating, mock.Anything).Return(nil)
	f.scenes.On("SetCompleted", mock.Anything, f.sceneID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.scenes.On("SetError", mock.Anything, f.sceneID, mock.Anything, mock.Anything).Return(nil)

	f.svc.deps.Ledger = &failingCommitLedger{Ledger: f.ledger}

	before, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)

	_, err = f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
	})
	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, models.StageCreditCommit, pipeErr.Stage)

	// Артефакт удалён, сцена переведена в error, резерв возвращён
	assert.Equal(t, 0, f.blobs.Len())
	f.scenes.AssertCalled(t, "SetError", mock.Anything, f.sceneID, mock.Anything, mock.Anything)
	after, err := f.ledger.Available(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGenerateIllustrationFailureDetailsPersisted(t *testing.T) {
	f := newFixture(t, &stubProvider{
		name: generation.ProviderDiffusion,
		err:  &generation.UpstreamError{Provider: generation.ProviderDiffusion, Status: 429, Body: `{"error":"slow down"}`},
	})
	f.scenes.On("UpdateGenerationStatus", mock.Anything, f.sceneID, models.GenerationStatusGenerating, mock.Anything).Return(nil)

	var captured json.RawMessage
	f.scenes.On("SetError", mock.Anything, f.sceneID, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured, _ = args.Get(3).(json.RawMessage)
		}).Return(nil)

	_, err := f.svc.GenerateIllustration(context.Background(), f.userID, GenerateRequest{
		SceneID:        f.sceneID,
		StyleIntensity: 70,
	})
	require.Error(t, err)

	// Отладочный payload достаточен для воспроизведения сбоя
	require.NotEmpty(t, captured)
	var details models.ConsistencyDetails
	require.NoError(t, json.Unmarshal(captured, &details))
	assert.NotEmpty(t, details.Prompt)
	assert.NotEmpty(t, details.PromptHash)
	assert.Equal(t, string(models.StageUpstreamGeneration), details.FailureStage)
}

func TestResetStory(t *testing.T) {
	f := newFixture(t, &stubProvider{name: generation.ProviderDiffusion, data: testImageBytes(t)})
	f.scenes.On("ResetByStory", mock.Anything, f.storyID).Return(int64(3), nil)

	t.Run("Owner resets scenes", func(t *testing.T) {
		count, err := f.svc.ResetStory(context.Background(), f.userID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("Outsider is rejected", func(t *testing.T) {
		_, err := f.svc.ResetStory(context.Background(), uuid.New(), f.storyID)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}
