package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openaiProvider — мультимодальный провайдер поверх OpenAI-совместимого API.
// Изображение запрашивается в base64, чтобы не зависеть от временных URL.
type openaiProvider struct {
	client  *openai.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIProvider создает провайдер OpenAI Images API.
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration, logger *zap.Logger) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai provider: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &openaiProvider{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
		logger:  logger.Named("openai_provider"),
	}, nil
}

func (p *openaiProvider) Name() string { return ProviderOpenAI }

func (p *openaiProvider) MaxPromptLength() int { return 4000 }

func (p *openaiProvider) Generate(ctx context.Context, params GenerateParams) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	log := p.logger.With(zap.String("model", params.Model))
	log.Debug("Requesting image generation", zap.Int("prompt_len", len(params.Prompt)))

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Model:          params.Model,
		Prompt:         params.Prompt,
		Size:           imageSize(params.Width, params.Height),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, toUpstreamError(ProviderOpenAI, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &UpstreamError{Provider: ProviderOpenAI, Status: http.StatusOK, Body: ""}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image payload: %w", err)
	}
	log.Debug("Image generated", zap.Int("size_bytes", len(data)))
	return data, nil
}

// toUpstreamError переводит ошибку go-openai в *UpstreamError, сохраняя
// статус и тело для классификатора.
func toUpstreamError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Provider: provider,
			Status:   apiErr.HTTPStatusCode,
			Body:     apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			Provider: provider,
			Status:   reqErr.HTTPStatusCode,
			Body:     reqErr.Error(),
		}
	}
	return err
}

// imageSize подбирает ближайший поддерживаемый размер.
func imageSize(width, height int) string {
	switch {
	case width == 0 || height == 0 || width == height:
		return openai.CreateImageSize1024x1024
	case width > height:
		return openai.CreateImageSize1792x1024
	default:
		return openai.CreateImageSize1024x1792
	}
}
