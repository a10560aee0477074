package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"illustrator-server/internal/imagecheck"
)

// httpProvider — диффузионный провайдер с простым JSON API: POST /generate,
// в ответе либо сырые байты изображения, либо JSON с base64-полем.
type httpProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPProvider создает диффузионный провайдер.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) Provider {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &httpProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("diffusion_provider"),
	}
}

func (p *httpProvider) Name() string { return ProviderDiffusion }

func (p *httpProvider) MaxPromptLength() int { return 1500 }

type diffusionRequest struct {
	Prompt        string  `json:"prompt"`
	Model         string  `json:"model"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	Steps         int     `json:"num_inference_steps,omitempty"`
	GuidanceScale float64 `json:"guidance_scale,omitempty"`
}

type diffusionResponse struct {
	ImageBase64 string `json:"image_base64"`
	Error       string `json:"error"`
}

func (p *httpProvider) Generate(ctx context.Context, params GenerateParams) ([]byte, error) {
	log := p.logger.With(zap.String("model", params.Model), zap.String("api_url", p.baseURL))

	payload, err := json.Marshal(diffusionRequest{
		Prompt:        params.Prompt,
		Model:         params.Model,
		Width:         params.Width,
		Height:        params.Height,
		Steps:         params.Steps,
		GuidanceScale: params.GuidanceScale,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := p.baseURL + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*, application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	log.Debug("Sending request to diffusion API", zap.Int("steps", params.Steps))
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Warn("Diffusion API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.Int("body_len", len(body)),
		)
		return nil, &UpstreamError{
			Provider: ProviderDiffusion,
			Status:   resp.StatusCode,
			Headers:  resp.Header,
			Body:     string(body),
		}
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	// Некоторые развертывания отдают изображение напрямую, некоторые —
	// JSON с base64-полем. Различаем по сигнатуре.
	if imagecheck.SniffFormat(body) != imagecheck.FormatUnknown {
		log.Debug("Raw image body received", zap.Int("size_bytes", len(body)))
		return body, nil
	}

	var parsed diffusionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &UpstreamError{
			Provider: ProviderDiffusion,
			Status:   resp.StatusCode,
			Headers:  resp.Header,
			Body:     string(body),
		}
	}
	if parsed.Error != "" {
		return nil, &UpstreamError{
			Provider: ProviderDiffusion,
			Status:   resp.StatusCode,
			Headers:  resp.Header,
			Body:     parsed.Error,
		}
	}
	data, err := base64.StdEncoding.DecodeString(parsed.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image payload: %w", err)
	}
	log.Debug("Image generated", zap.Int("size_bytes", len(data)))
	return data, nil
}
