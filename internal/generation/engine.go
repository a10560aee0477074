package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"illustrator-server/internal/imagecheck"
	"illustrator-server/internal/styles"
	"illustrator-server/internal/vision"
)

// Critic оценивает готовую иллюстрацию относительно промпта.
type Critic interface {
	CritiqueImage(ctx context.Context, prompt string, imageData []byte) (*vision.Critique, error)
}

// Request — один запуск движка генерации.
type Request struct {
	Prompt    string
	Selection ModelSelection
	Category  styles.Category
	Intensity int
	Width     int
	Height    int
	// Deadline — жёсткий потолок исполнения пайплайна. Нулевое значение
	// отключает пропуск опциональных стадий.
	Deadline time.Time
}

// Result — результат успешной генерации, прошедшей проверки качества.
type Result struct {
	Data          []byte
	Model         string
	Provider      string
	Stats         *imagecheck.Stats
	FallbackUsed  bool
	CritiqueScore *int
	Warnings      []string
}

// Engine связывает реестр провайдеров, fallback-политику и проверки качества.
type Engine struct {
	providers         map[string]Provider
	critic            Critic
	critiqueThreshold int
	logger            *zap.Logger
}

// Время, которое должно оставаться в бюджете для запуска опциональной
// пост-проверки и для повторной генерации после неё.
const (
	critiqueMargin = 25 * time.Second
	retryMargin    = 45 * time.Second
)

// NewEngine создает движок. critic может быть nil — пост-проверка отключена.
func NewEngine(providers map[string]Provider, critic Critic, critiqueThreshold int, logger *zap.Logger) *Engine {
	if critiqueThreshold <= 0 {
		critiqueThreshold = 50
	}
	return &Engine{
		providers:         providers,
		critic:            critic,
		critiqueThreshold: critiqueThreshold,
		logger:            logger.Named("generation_engine"),
	}
}

// PromptLimit — лимит длины промпта для выбранной модели.
func (e *Engine) PromptLimit(spec ModelSpec) int {
	if spec.MaxPromptLength > 0 {
		return spec.MaxPromptLength
	}
	if p, ok := e.providers[spec.Provider]; ok {
		return p.MaxPromptLength()
	}
	return 1000
}

// Generate выполняет основной вызов, единственный fallback-ретрай при
// невалидной автоматически выбранной модели, проверку изображения и —
// при наличии критика и запаса времени — одну итерацию пост-проверки.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	data, modelUsed, fallbackUsed, err := e.generateWithFallback(ctx, req)
	if err != nil {
		return nil, err
	}

	stats, err := imagecheck.Validate(data)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:         data,
		Model:        modelUsed.ID,
		Provider:     modelUsed.Provider,
		Stats:        stats,
		FallbackUsed: fallbackUsed,
	}
	if fallbackUsed {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("primary model rejected, fallback model %s used", modelUsed.ID))
	}

	e.maybeCritique(ctx, req, modelUsed, result)
	return result, nil
}

func (e *Engine) generateWithFallback(ctx context.Context, req Request) ([]byte, ModelSpec, bool, error) {
	spec := req.Selection.Spec
	data, err := e.callProvider(ctx, req, spec, req.Prompt)
	if err == nil {
		return data, spec, false, nil
	}

	// Ровно один ретрай: только автоматически выбранная модель и только
	// клиентская ошибка «неизвестная модель». Всё остальное терминально.
	if req.Selection.Explicit || spec.ID == FallbackModelID || ClassifyError(err) != ReasonInvalidModel {
		return nil, spec, false, err
	}

	e.logger.Warn("Primary model rejected as invalid, retrying with fallback",
		zap.String("primary_model", spec.ID),
		zap.String("fallback_model", FallbackModelID),
		zap.Error(err),
	)
	fallbackSpec := allowedModels[FallbackModelID]
	data, fbErr := e.callProvider(ctx, req, fallbackSpec, req.Prompt)
	if fbErr != nil {
		return nil, fallbackSpec, true, fbErr
	}
	return data, fallbackSpec, true, nil
}

func (e *Engine) callProvider(ctx context.Context, req Request, spec ModelSpec, promptText string) ([]byte, error) {
	provider, ok := e.providers[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", spec.Provider)
	}
	params := styles.ParamsFor(req.Category, req.Intensity, spec.ID)
	return provider.Generate(ctx, GenerateParams{
		Prompt:        promptText,
		Model:         spec.ID,
		Width:         req.Width,
		Height:        req.Height,
		Steps:         params.Steps,
		GuidanceScale: params.GuidanceScale,
	})
}

// maybeCritique — опциональная пост-проверка: оценка изображения и не более
// одной дополнительной генерации со строгим промптом. Любой сбой критика
// только логируется, на результат не влияет.
func (e *Engine) maybeCritique(ctx context.Context, req Request, spec ModelSpec, result *Result) {
	if e.critic == nil {
		return
	}
	if !req.Deadline.IsZero() && time.Until(req.Deadline) < critiqueMargin {
		e.logger.Debug("Skipping critique, time budget too low")
		return
	}

	critique, err := e.critic.CritiqueImage(ctx, req.Prompt, result.Data)
	if err != nil {
		e.logger.Warn("Image critique failed", zap.Error(err))
		return
	}
	result.CritiqueScore = &critique.Score
	if critique.Score >= e.critiqueThreshold {
		return
	}
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("critique score %d below threshold: %s", critique.Score, critique.Comment))

	if !req.Deadline.IsZero() && time.Until(req.Deadline) < retryMargin {
		e.logger.Debug("Skipping critique retry, time budget too low")
		return
	}

	stricter := req.Prompt + " Strictly follow the described scene, characters and art style."
	data, err := e.callProvider(ctx, req, spec, stricter)
	if err != nil {
		e.logger.Warn("Critique-driven regeneration failed, keeping first image", zap.Error(err))
		return
	}
	stats, err := imagecheck.Validate(data)
	if err != nil {
		e.logger.Warn("Regenerated image failed validation, keeping first image", zap.Error(err))
		return
	}
	e.logger.Info("Replaced image after low critique score", zap.Int("score", critique.Score))
	result.Data = data
	result.Stats = stats
	result.Warnings = append(result.Warnings, "image regenerated after low critique score")
}
