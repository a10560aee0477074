// Package handler — HTTP-слой сервиса иллюстраций. Все дефолты запроса
// применяются здесь, один раз, на границе; пайплайн получает уже полностью
// провалидированную структуру.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
	"illustrator-server/internal/service"
	"illustrator-server/internal/styles"
)

// Значения по умолчанию для опциональных полей запроса.
const (
	defaultStyleIntensity = 70
	defaultWidth          = 832
	defaultHeight         = 1216
)

// generateRequestDTO — тело POST /scenes/generate-illustration.
// Указатели различают «поле не прислано» и «прислан ноль/false».
type generateRequestDTO struct {
	SceneID                        string   `json:"sceneId"`
	StoryID                        string   `json:"storyId"`
	ArtStyle                       string   `json:"artStyle"`
	Model                          string   `json:"model"`
	Width                          int      `json:"width"`
	Height                         int      `json:"height"`
	StyleIntensity                 *int     `json:"styleIntensity"`
	StrictStyle                    *bool    `json:"strictStyle"`
	DisabledStyleElements          []string `json:"disabledStyleElements"`
	ForcePrompt                    string   `json:"forcePrompt"`
	ForceFullPrompt                string   `json:"forceFullPrompt"`
	PromptOnly                     bool     `json:"promptOnly"`
	CharacterImageReferenceEnabled bool     `json:"characterImageReferenceEnabled"`
	ClientRequestID                string   `json:"clientRequestId"`
	Reset                          bool     `json:"reset"`
}

type generateResponseDTO struct {
	Success    bool     `json:"success"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	RequestID  string   `json:"requestId"`
	Model      string   `json:"model,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	PromptHash string   `json:"promptHash,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Credits    *int64   `json:"credits,omitempty"`
}

type errorResponseDTO struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Details   string `json:"details,omitempty"`
	Credits   *int64 `json:"credits,omitempty"`
}

// IllustrationHandler обслуживает эндпоинты генерации иллюстраций.
type IllustrationHandler struct {
	svc    *service.IllustrationService
	logger *zap.Logger
}

// NewIllustrationHandler создает HTTP-обработчик.
func NewIllustrationHandler(svc *service.IllustrationService, logger *zap.Logger) *IllustrationHandler {
	return &IllustrationHandler{svc: svc, logger: logger.Named("illustration_handler")}
}

// RegisterRoutes регистрирует маршруты под защищённой группой.
func (h *IllustrationHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/scenes/generate-illustration", h.generate)
}

func (h *IllustrationHandler) generate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponseDTO{Error: "unauthorized"})
		return
	}

	var dto generateRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, errorResponseDTO{Error: "invalid JSON body", Details: err.Error()})
		return
	}

	// Сброс истории — побочное действие того же эндпоинта
	if dto.Reset {
		h.resetStory(c, userID, dto.StoryID)
		return
	}

	req, err := h.toServiceRequest(dto)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponseDTO{Error: err.Error()})
		return
	}

	outcome, err := h.svc.GenerateIllustration(c.Request.Context(), userID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, generateResponseDTO{
		Success:    true,
		ImageURL:   outcome.ImageURL,
		RequestID:  outcome.RequestID,
		Model:      outcome.Model,
		Prompt:     outcome.Prompt,
		PromptHash: outcome.PromptHash,
		Warnings:   outcome.Warnings,
		Credits:    outcome.Credits,
	})
}

func (h *IllustrationHandler) resetStory(c *gin.Context, userID uuid.UUID, rawStoryID string) {
	storyID, err := uuid.Parse(rawStoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponseDTO{Error: "storyId must be a valid UUID for reset"})
		return
	}
	count, err := h.svc.ResetStory(c.Request.Context(), userID, storyID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			c.JSON(http.StatusForbidden, errorResponseDTO{Error: "story belongs to another user"})
		case errors.Is(err, models.ErrStoryNotFound):
			c.JSON(http.StatusNotFound, errorResponseDTO{Error: "story not found"})
		default:
			h.logger.Error("Story reset failed", zap.String("story_id", rawStoryID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponseDTO{Error: "failed to reset story"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scenesReset": count})
}

// toServiceRequest применяет дефолты и валидирует UUID-поля.
func (h *IllustrationHandler) toServiceRequest(dto generateRequestDTO) (service.GenerateRequest, error) {
	sceneID, err := uuid.Parse(dto.SceneID)
	if err != nil {
		return service.GenerateRequest{}, errors.New("sceneId must be a valid UUID")
	}

	var clientRequestID uuid.UUID
	if dto.ClientRequestID != "" {
		clientRequestID, err = uuid.Parse(dto.ClientRequestID)
		if err != nil {
			return service.GenerateRequest{}, errors.New("clientRequestId must be a valid UUID")
		}
	}

	if dto.ArtStyle != "" && !styles.IsKnown(dto.ArtStyle) {
		return service.GenerateRequest{}, errors.New("unknown artStyle")
	}

	intensity := defaultStyleIntensity
	if dto.StyleIntensity != nil {
		intensity = *dto.StyleIntensity
	}
	if intensity < 0 || intensity > 100 {
		return service.GenerateRequest{}, errors.New("styleIntensity must be within 0..100")
	}

	strict := true
	if dto.StrictStyle != nil {
		strict = *dto.StrictStyle
	}

	width, height := dto.Width, dto.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	return service.GenerateRequest{
		SceneID:                        sceneID,
		ArtStyle:                       dto.ArtStyle,
		Model:                          dto.Model,
		Width:                          width,
		Height:                         height,
		StyleIntensity:                 intensity,
		StrictStyle:                    strict,
		DisabledStyleElements:          dto.DisabledStyleElements,
		ForcePrompt:                    dto.ForcePrompt,
		ForceFullPrompt:                dto.ForceFullPrompt,
		PromptOnly:                     dto.PromptOnly,
		CharacterImageReferenceEnabled: dto.CharacterImageReferenceEnabled,
		ClientRequestID:                clientRequestID,
	}, nil
}

// writeError переводит ошибку пайплайна в структурированный ответ со стадией.
func (h *IllustrationHandler) writeError(c *gin.Context, err error) {
	var pipeErr *models.PipelineError
	if errors.As(err, &pipeErr) {
		status := pipeErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, errorResponseDTO{
			Error:     pipeErr.Details,
			RequestID: pipeErr.RequestID,
			Stage:     string(pipeErr.Stage),
			Details:   pipeErr.Error(),
			Credits:   pipeErr.Credits,
		})
		return
	}
	h.logger.Error("Unhandled service error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, errorResponseDTO{Error: "internal server error"})
}
