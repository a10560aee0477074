// Package service содержит оркестратор генерации иллюстраций: конечный
// автомат, связывающий леджер кредитов, резолвер внешности, сборку промпта,
// движок генерации и хранилище артефактов. Леджер обязан закончить в
// консистентном состоянии независимо от того, на какой стадии упал пайплайн.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"illustrator-server/internal/appearance"
	"illustrator-server/internal/cache"
	"illustrator-server/internal/credits"
	"illustrator-server/internal/generation"
	"illustrator-server/internal/messaging"
	"illustrator-server/internal/models"
	"illustrator-server/internal/prompt"
	"illustrator-server/internal/repository"
	"illustrator-server/internal/storage"
	"illustrator-server/internal/styles"
)

// GenerateRequest — полностью провалидированный запрос генерации с уже
// применёнными значениями по умолчанию (дефолты применяет HTTP-слой).
type GenerateRequest struct {
	SceneID               uuid.UUID
	ArtStyle              string
	Model                 string
	Width                 int
	Height                int
	StyleIntensity        int
	StrictStyle           bool
	DisabledStyleElements []string
	// ForcePrompt заменяет текст сцены; ForceFullPrompt заменяет весь
	// собранный промпт целиком.
	ForcePrompt     string
	ForceFullPrompt string
	PromptOnly      bool
	// CharacterImageReferenceEnabled включает префетч референсных
	// изображений и vision-описаний черт персонажей.
	CharacterImageReferenceEnabled bool
	// ClientRequestID — идемпотентный ключ от клиента; нулевой UUID
	// означает, что ключ генерирует сервер.
	ClientRequestID uuid.UUID
}

// GenerateOutcome — результат успешного прохода пайплайна (или promptOnly).
type GenerateOutcome struct {
	Success    bool
	PromptOnly bool
	RequestID  string
	ImageURL   string
	Model      string
	Prompt     string
	PromptHash string
	Warnings   []string
	// Credits — доступный остаток после операции; nil, если леджер
	// был недоступен.
	Credits *int64
}

// Deps — зависимости оркестратора.
type Deps struct {
	Stories    repository.StoryRepository
	Scenes     repository.SceneRepository
	Characters repository.CharacterRepository
	Attempts   repository.AttemptRepository
	Ledger     credits.Ledger
	Engine     *generation.Engine
	Blobs      storage.BlobStore
	Publisher  messaging.EventPublisher
	// Describer опционален: nil отключает vision-описания референсов.
	Describer CharacterDescriber
	// RefImages и Traits — ограниченные кеши референсных изображений и
	// vision-описаний. Чистая оптимизация, гонки безвредны.
	RefImages *cache.Store
	Traits    *cache.Store
	// HTTPClient используется для скачивания референсных изображений.
	HTTPClient *http.Client
}

// Config — настройки пайплайна.
type Config struct {
	GenerationCost   int64
	PipelineDeadline time.Duration
	FinalizeMargin   time.Duration
	ImagePathPrefix  string
}

// CharacterDescriber извлекает текстовое описание черт персонажа
// из референсного изображения.
type CharacterDescriber interface {
	DescribeCharacter(ctx context.Context, imageData []byte) (string, error)
}

// IllustrationService — оркестратор генерации иллюстраций сцен.
type IllustrationService struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewIllustrationService создает оркестратор.
func NewIllustrationService(deps Deps, cfg Config, logger *zap.Logger) *IllustrationService {
	if cfg.GenerationCost <= 0 {
		cfg.GenerationCost = 1
	}
	if cfg.PipelineDeadline <= 0 {
		cfg.PipelineDeadline = 150 * time.Second
	}
	if cfg.FinalizeMargin <= 0 {
		cfg.FinalizeMargin = 15 * time.Second
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher{}
	}
	return &IllustrationService{deps: deps, cfg: cfg, logger: logger.Named("illustration_service")}
}

// pipelineState — накапливаемое состояние одного прохода пайплайна.
type pipelineState struct {
	start      time.Time
	deadline   time.Time
	requestID  uuid.UUID
	userID     uuid.UUID
	scene      *models.Scene
	story      *models.Story
	style      styles.Style
	selection  generation.ModelSelection
	effective  map[string]models.AppearanceSnapshot
	statesHash string
	fullPrompt string
	promptHash string
	warnings   []string
	preprocess []string
	// reserved — резерв удержан; bypassed — леджер был недоступен и
	// пайплайн деградировал до прямого списания при успехе.
	reserved bool
	bypassed bool
	// artifactPath непустой после успешной загрузки в хранилище.
	artifactPath string
	modelUsed    string
}

// GenerateIllustration выполняет полный пайплайн для одной сцены.
// Любой сбой возвращается как *models.PipelineError со стадией;
// леджер при этом гарантированно возвращён в нейтральное состояние.
func (s *IllustrationService) GenerateIllustration(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*GenerateOutcome, error) {
	st := &pipelineState{
		start:     time.Now(),
		requestID: req.ClientRequestID,
		userID:    userID,
	}
	st.deadline = st.start.Add(s.cfg.PipelineDeadline)
	if st.requestID == uuid.Nil {
		st.requestID = uuid.New()
	}

	log := s.logger.With(
		zap.String("request_id", st.requestID.String()),
		zap.String("user_id", userID.String()),
		zap.String("scene_id", req.SceneID.String()),
	)
	log.Info("Generation pipeline started", zap.Bool("prompt_only", req.PromptOnly))

	// Стадии до резервирования не трогают ни леджер, ни сцену:
	// их сбои не требуют отката.
	if err := s.prepare(ctx, st, req); err != nil {
		log.Warn("Pipeline rejected before reservation", zap.Error(err))
		observeOutcome("rejected", err)
		return nil, withRequestID(err, st.requestID)
	}

	if req.PromptOnly {
		log.Info("Prompt-only run finished")
		observeOutcome("prompt_only", nil)
		return &GenerateOutcome{
			Success:    true,
			PromptOnly: true,
			RequestID:  st.requestID.String(),
			Model:      st.selection.Spec.ID,
			Prompt:     st.fullPrompt,
			PromptHash: st.promptHash,
			Warnings:   st.warnings,
		}, nil
	}

	if err := s.reserve(ctx, st, req); err != nil {
		observeOutcome("rejected", err)
		return nil, withRequestID(err, st.requestID)
	}

	// С этого места любой сбой обязан пройти через s.fail: откат сцены,
	// возврат кредитов, аудит и событие.
	outcome, err := s.execute(ctx, log, st, req)
	pipelineDuration.Observe(time.Since(st.start).Seconds())
	if err != nil {
		observeOutcome("failed", err)
		return nil, withRequestID(err, st.requestID)
	}
	observeOutcome("success", nil)
	log.Info("Generation pipeline finished",
		zap.String("model", outcome.Model),
		zap.Duration("elapsed", time.Since(st.start)),
	)
	return outcome, nil
}

// prepare — валидация, загрузка данных, внешность, сборка и проверка промпта.
func (s *IllustrationService) prepare(ctx context.Context, st *pipelineState, req GenerateRequest) error {
	if req.SceneID == uuid.Nil {
		return models.NewPipelineError(models.StageValidation, http.StatusBadRequest, models.ErrInvalidInput, "sceneId is required")
	}
	if req.StyleIntensity < 0 || req.StyleIntensity > 100 {
		return models.NewPipelineError(models.StageValidation, http.StatusBadRequest, models.ErrInvalidInput, "styleIntensity must be within 0..100")
	}

	scene, err := s.deps.Scenes.GetByID(ctx, req.SceneID)
	if err != nil {
		if errors.Is(err, models.ErrSceneNotFound) {
			return models.NewPipelineError(models.StageValidation, http.StatusNotFound, err, "scene not found")
		}
		return models.NewPipelineError(models.StageValidation, http.StatusInternalServerError, err, "failed to load scene")
	}
	st.scene = scene

	story, err := s.deps.Stories.GetByID(ctx, scene.StoryID)
	if err != nil {
		if errors.Is(err, models.ErrStoryNotFound) {
			return models.NewPipelineError(models.StageValidation, http.StatusNotFound, err, "story not found")
		}
		return models.NewPipelineError(models.StageValidation, http.StatusInternalServerError, err, "failed to load story")
	}
	if story.UserID != st.userID {
		return models.NewPipelineError(models.StageValidation, http.StatusForbidden, models.ErrForbidden, "story belongs to another user")
	}
	st.story = story

	styleID := req.ArtStyle
	if styleID == "" {
		styleID = story.ArtStyle
	}
	style, err := styles.Get(styleID)
	if err != nil {
		return models.NewPipelineError(models.StageValidation, http.StatusBadRequest, err, fmt.Sprintf("unknown art style %q", styleID))
	}
	st.style = style

	selection, err := generation.SelectModel(req.Model, style.Category)
	if err != nil {
		return models.NewPipelineError(models.StageValidation, http.StatusBadRequest, err, fmt.Sprintf("model %q is not allowed", req.Model))
	}
	st.selection = selection
	if selection.CategoryMismatch && req.StrictStyle {
		st.warnings = append(st.warnings,
			fmt.Sprintf("model %s is not recommended for %s styles", selection.Spec.ID, style.Category))
	}

	if err := s.resolveAppearance(ctx, st, req); err != nil {
		return err
	}
	return s.assemblePrompt(ctx, st, req)
}

func (s *IllustrationService) resolveAppearance(ctx context.Context, st *pipelineState, req GenerateRequest) error {
	characters, err := s.deps.Characters.ListByStory(ctx, st.story.ID)
	if err != nil {
		return models.NewPipelineError(models.StageAppearance, http.StatusInternalServerError, err, "failed to load characters")
	}
	history, err := s.deps.Scenes.ListByStoryAscending(ctx, st.story.ID)
	if err != nil {
		return models.NewPipelineError(models.StageAppearance, http.StatusInternalServerError, err, "failed to load scene history")
	}
	// История до целевой сцены включительно: аксессуары берутся только
	// из последней (текущей) записи.
	upTo := history[:0:0]
	for _, sc := range history {
		if sc.SceneNumber <= st.scene.SceneNumber {
			upTo = append(upTo, sc)
		}
	}

	defaults := make(map[string]appearance.Defaults, len(characters))
	for _, ch := range characters {
		defaults[ch.Name] = appearance.Defaults{
			Clothing:           ch.DefaultClothing,
			PhysicalAttributes: ch.PhysicalAttributes,
		}
	}

	result := appearance.Resolve(st.scene.CharacterNames, upTo, defaults)
	st.effective = result.EffectiveByName
	for _, name := range result.MissingClothing {
		st.warnings = append(st.warnings, fmt.Sprintf("no clothing known for character %q", name))
	}

	st.statesHash = appearance.StatesHash(st.effective)
	s.warnOnStatesDrift(st)

	if req.CharacterImageReferenceEnabled {
		s.prefetchCharacterTraits(ctx, st, characters)
	}
	return nil
}

// warnOnStatesDrift сравнивает хэш состояний с сохранённым при прошлой
// генерации сцены и предупреждает о расхождении.
func (s *IllustrationService) warnOnStatesDrift(st *pipelineState) {
	if len(st.scene.ConsistencyDetails) == 0 {
		return
	}
	var prev models.ConsistencyDetails
	if err := json.Unmarshal(st.scene.ConsistencyDetails, &prev); err != nil {
		return
	}
	if prev.CharacterStatesHash != "" && prev.CharacterStatesHash != st.statesHash {
		s.logger.Warn("Character states drifted since previous generation",
			zap.String("scene_id", st.scene.ID.String()),
			zap.String("previous_hash", prev.CharacterStatesHash),
			zap.String("current_hash", st.statesHash),
		)
		st.warnings = append(st.warnings, "character appearance changed since previous generation of this scene")
	}
}

func (s *IllustrationService) assemblePrompt(_ context.Context, st *pipelineState, req GenerateRequest) error {
	maxLen := s.deps.Engine.PromptLimit(st.selection.Spec)

	if req.ForceFullPrompt != "" {
		st.fullPrompt = req.ForceFullPrompt
		if runes := []rune(st.fullPrompt); len(runes) > maxLen {
			st.fullPrompt = string(runes[:maxLen])
			st.warnings = append(st.warnings, "forced prompt truncated to model limit")
		}
		st.preprocess = append(st.preprocess, "forced full prompt")
	} else {
		base := req.ForcePrompt
		if base == "" {
			base = st.scene.ImagePrompt
		}
		if base == "" {
			base = st.scene.Summary
		}
		res, err := prompt.Assemble(prompt.AssembleInput{
			BasePrompt:        base,
			CharacterAppendix: appearance.AppendixText(st.effective),
			Style:             st.style,
			StyleIntensity:    req.StyleIntensity,
			DisabledElements:  req.DisabledStyleElements,
			ProviderMaxLength: maxLen,
			RequiredSubjects:  st.scene.CharacterNames,
		})
		if err != nil {
			return models.NewPipelineError(models.StageValidation, http.StatusBadRequest, err, "scene has no text to build a prompt from")
		}
		st.fullPrompt = res.FullPrompt
		if res.Truncated {
			st.warnings = append(st.warnings, "prompt truncated to model limit")
		}
		for _, name := range res.MissingSubjects {
			st.warnings = append(st.warnings, fmt.Sprintf("character %q is missing from the final prompt", name))
		}
		if req.ForcePrompt != "" {
			st.preprocess = append(st.preprocess, "forced base prompt")
		}
	}

	warning, err := prompt.ValidateStyleApplied(st.fullPrompt, st.style, req.StrictStyle)
	if err != nil {
		// Жёсткий отказ до какого-либо резервирования кредитов
		return models.NewPipelineError(models.StageStyleValidation, http.StatusBadRequest, err,
			fmt.Sprintf("style %q is not reflected in the assembled prompt", st.style.ID))
	}
	if warning != "" {
		st.warnings = append(st.warnings, warning)
	}
	st.promptHash = prompt.Hash(st.fullPrompt)
	return nil
}

// reserve удерживает кредиты либо деградирует до пути без резерва.
func (s *IllustrationService) reserve(ctx context.Context, st *pipelineState, req GenerateRequest) error {
	attempt := &models.GenerationAttempt{
		RequestID: st.requestID,
		UserID:    st.userID,
		SceneID:   st.scene.ID,
		Status:    models.AttemptStarted,
	}
	if err := s.deps.Attempts.Create(ctx, attempt); err != nil {
		s.logger.Warn("Failed to create attempt record", zap.Error(err))
	}

	meta := map[string]any{"scene_id": st.scene.ID.String()}
	res, err := s.deps.Ledger.Reserve(ctx, st.userID, st.requestID, s.cfg.GenerationCost, credits.FeatureIllustration, meta)
	switch {
	case err == nil:
		st.reserved = true
		if res.AlreadyReserved {
			s.logger.Info("Reservation already held for request", zap.String("request_id", st.requestID.String()))
		}
		return nil
	case errors.Is(err, models.ErrInsufficientCredits):
		s.finalizeRejectedAttempt(ctx, st)
		pipeErr := models.NewPipelineError(models.StageCreditsReservation, http.StatusPaymentRequired, err, "not enough credits")
		// Остаток в ответе помогает клиенту показать, сколько не хватает
		if available, balanceErr := s.deps.Ledger.Available(ctx, st.userID); balanceErr == nil {
			pipeErr.Credits = &available
		}
		return pipeErr
	case errors.Is(err, models.ErrDuplicateTransaction):
		s.finalizeRejectedAttempt(ctx, st)
		return models.NewPipelineError(models.StageCreditsReservation, http.StatusConflict, err, "request already finished")
	default:
		// Механизм резервирования недоступен: деградируем до прямого
		// списания при успехе, с пометкой в отладочном payload
		s.logger.Error("Reservation unavailable, degrading to unreserved charge", zap.Error(err))
		st.bypassed = true
		st.warnings = append(st.warnings, "credit reservation unavailable, charged on success only")
		return nil
	}
}

// finalizeRejectedAttempt закрывает аудиторскую запись при отказе на стадии
// резервирования: такие запросы терминальны и не должны висеть как started.
func (s *IllustrationService) finalizeRejectedAttempt(ctx context.Context, st *pipelineState) {
	if err := s.deps.Attempts.Finalize(ctx, st.requestID, models.AttemptFailed, 0, string(models.StageCreditsReservation)); err != nil {
		s.logger.Warn("Failed to finalize rejected attempt record", zap.Error(err))
	}
}

// execute — стадии после резервирования: генерация, проверка, сохранение,
// обновление сцены и подтверждение списания строго в этом порядке.
func (s *IllustrationService) execute(ctx context.Context, log *zap.Logger, st *pipelineState, req GenerateRequest) (*GenerateOutcome, error) {
	if err := s.deps.Scenes.UpdateGenerationStatus(ctx, st.scene.ID, models.GenerationStatusGenerating, "Генерация изображения..."); err != nil {
		return nil, s.fail(ctx, st, models.StageSceneUpdate, http.StatusInternalServerError, err, "failed to mark scene as generating")
	}

	if time.Until(st.deadline) < s.cfg.FinalizeMargin {
		return nil, s.fail(ctx, st, models.StageUpstreamGeneration, http.StatusInternalServerError,
			models.ErrTimeBudgetExpired, "no time left for generation")
	}

	genResult, err := s.deps.Engine.Generate(ctx, generation.Request{
		Prompt:    st.fullPrompt,
		Selection: st.selection,
		Category:  st.style.Category,
		Intensity: req.StyleIntensity,
		Width:     req.Width,
		Height:    req.Height,
		Deadline:  st.deadline.Add(-s.cfg.FinalizeMargin),
	})
	if err != nil {
		if errors.Is(err, models.ErrBlankImage) || errors.Is(err, models.ErrImageTooSmall) || errors.Is(err, models.ErrUnknownImage) {
			return nil, s.fail(ctx, st, models.StageBlankImage, http.StatusBadGateway, err, "provider returned an unusable image")
		}
		reason := generation.ClassifyError(err)
		log.Warn("Upstream generation failed", zap.String("reason", string(reason)), zap.Error(err))
		return nil, s.fail(ctx, st, models.StageUpstreamGeneration, reason.HTTPStatus(), err, reason.Message())
	}
	st.modelUsed = genResult.Model
	st.warnings = append(st.warnings, genResult.Warnings...)

	artifactPath := s.artifactPath(st, genResult.Stats.Format.Extension())
	if err := s.deps.Blobs.Upload(ctx, artifactPath, genResult.Data, genResult.Stats.Format.ContentType()); err != nil {
		return nil, s.fail(ctx, st, models.StageStorageUpload, http.StatusInternalServerError, err, "failed to store generated image")
	}
	st.artifactPath = artifactPath
	imageURL := s.deps.Blobs.GetPublicURL(artifactPath)

	details := s.consistencyDetails(st, genResult.CritiqueScore, "", "")
	if err := s.deps.Scenes.SetCompleted(ctx, st.scene.ID, imageURL, st.fullPrompt, st.effective, details); err != nil {
		return nil, s.fail(ctx, st, models.StageSceneUpdate, http.StatusInternalServerError, err, "failed to persist scene result")
	}

	// Списание строго после персиста: сбой здесь откатывает и артефакт,
	// и сцену, чтобы не осталось «готовой» сцены с невзысканной оплатой
	available, err := s.commitCharge(ctx, st)
	if err != nil {
		return nil, s.fail(ctx, st, models.StageCreditCommit, http.StatusInternalServerError, err, "failed to charge credits")
	}

	if err := s.deps.Attempts.Finalize(ctx, st.requestID, models.AttemptSucceeded, s.cfg.GenerationCost, ""); err != nil {
		log.Warn("Failed to finalize attempt record", zap.Error(err))
	}
	s.publishEvent(ctx, st, true, imageURL, "", "")

	return &GenerateOutcome{
		Success:    true,
		RequestID:  st.requestID.String(),
		ImageURL:   imageURL,
		Model:      st.modelUsed,
		Prompt:     st.fullPrompt,
		PromptHash: st.promptHash,
		Warnings:   st.warnings,
		Credits:    available,
	}, nil
}

func (s *IllustrationService) commitCharge(ctx context.Context, st *pipelineState) (*int64, error) {
	meta := map[string]any{"scene_id": st.scene.ID.String(), "model": st.modelUsed}
	if st.bypassed {
		meta["reservation_bypassed"] = true
		res, err := s.deps.Ledger.Consume(ctx, st.userID, st.requestID, s.cfg.GenerationCost, credits.FeatureIllustration, meta)
		if err != nil {
			return nil, err
		}
		return &res.Available, nil
	}
	res, err := s.deps.Ledger.Commit(ctx, st.userID, st.requestID, meta)
	if err != nil {
		return nil, err
	}
	return &res.Available, nil
}

// fail — единая точка отказа после резервирования: откат артефакта и сцены,
// безусловный возврат кредитов, аудит и событие. Ошибки отката логируются,
// но не маскируют исходную ошибку.
func (s *IllustrationService) fail(ctx context.Context, st *pipelineState, stage models.PipelineStage, status int, cause error, details string) error {
	log := s.logger.With(
		zap.String("request_id", st.requestID.String()),
		zap.String("stage", string(stage)),
	)
	log.Error("Pipeline failed", zap.Error(cause))

	if st.artifactPath != "" {
		if err := s.deps.Blobs.Remove(ctx, []string{st.artifactPath}); err != nil {
			log.Error("Failed to remove uploaded artifact", zap.String("path", st.artifactPath), zap.Error(err))
		}
	}

	payload := s.consistencyDetails(st, nil, string(stage), details)
	if err := s.deps.Scenes.SetError(ctx, st.scene.ID, humanStatus(stage, details), payload); err != nil {
		log.Error("Failed to persist scene error state", zap.Error(err))
	}

	// forceRefund идемпотентен и безопасен при любом состоянии резерва;
	// для пути без резерва он оставит аудиторскую запись с нулевой суммой
	refundReason := fmt.Sprintf("pipeline failed at %s", stage)
	meta := map[string]any{"scene_id": st.scene.ID.String(), "stage": string(stage)}
	if st.bypassed {
		meta["reservation_bypassed"] = true
	}
	if err := s.deps.Ledger.ForceRefund(ctx, st.userID, st.requestID, refundReason, meta); err != nil {
		log.Error("Refund attempt failed", zap.Error(err))
	}

	if err := s.deps.Attempts.Finalize(ctx, st.requestID, models.AttemptFailed, 0, string(stage)); err != nil {
		log.Warn("Failed to finalize attempt record", zap.Error(err))
	}
	s.publishEvent(ctx, st, false, "", stage, details)

	return models.NewPipelineError(stage, status, cause, details)
}

func (s *IllustrationService) publishEvent(ctx context.Context, st *pipelineState, success bool, imageURL string, stage models.PipelineStage, details string) {
	event := messaging.GenerationEvent{
		RequestID: st.requestID.String(),
		UserID:    st.userID,
		SceneID:   st.scene.ID,
		Success:   success,
		ImageURL:  imageURL,
		Model:     st.modelUsed,
		Stage:     stage,
		Details:   details,
		Timestamp: time.Now(),
	}
	if err := s.deps.Publisher.PublishGenerationEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish generation event",
			zap.String("request_id", st.requestID.String()), zap.Error(err))
	}
}

func (s *IllustrationService) consistencyDetails(st *pipelineState, critiqueScore *int, failureStage, failureReason string) json.RawMessage {
	details := models.ConsistencyDetails{
		RequestID:           st.requestID.String(),
		Model:               st.modelUsed,
		Prompt:              st.fullPrompt,
		PromptHash:          st.promptHash,
		CharacterStatesHash: st.statesHash,
		PreprocessingSteps:  st.preprocess,
		Warnings:            st.warnings,
		FailureStage:        failureStage,
		FailureReason:       failureReason,
		ReservationBypassed: st.bypassed,
		ElapsedMS:           time.Since(st.start).Milliseconds(),
	}
	if details.Model == "" {
		details.Model = st.selection.Spec.ID
	}
	_ = critiqueScore // оценка критика уже отражена в warnings
	raw, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return raw
}

func (s *IllustrationService) artifactPath(st *pipelineState, ext string) string {
	prefix := s.cfg.ImagePathPrefix
	if prefix == "" {
		prefix = "illustrations"
	}
	return fmt.Sprintf("%s/%s/%s/%s.%s", prefix, st.story.ID, st.scene.ID, st.requestID, ext)
}

// withRequestID вписывает идентификатор запроса в ошибку пайплайна,
// чтобы клиент мог сверить ответ с аудиторской записью.
func withRequestID(err error, requestID uuid.UUID) error {
	var pipeErr *models.PipelineError
	if errors.As(err, &pipeErr) {
		pipeErr.RequestID = requestID.String()
	}
	return err
}

// humanStatus — человекочитаемый статус для записи в сцену.
func humanStatus(stage models.PipelineStage, details string) string {
	if details != "" {
		return details
	}
	return "Генерация не удалась на стадии " + string(stage)
}

// ResetStory возвращает все сцены истории в pending и очищает изображения.
func (s *IllustrationService) ResetStory(ctx context.Context, userID, storyID uuid.UUID) (int64, error) {
	story, err := s.deps.Stories.GetByID(ctx, storyID)
	if err != nil {
		return 0, err
	}
	if story.UserID != userID {
		return 0, models.ErrForbidden
	}
	count, err := s.deps.Scenes.ResetByStory(ctx, storyID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Story scenes reset",
		zap.String("story_id", storyID.String()),
		zap.Int64("scenes", count),
	)
	return count, nil
}
