// Package vision — опциональный клиент «опиши изображение»: извлекает
// текстовое описание черт персонажа из референсного изображения и оценивает
// готовую иллюстрацию при включенной пост-проверке.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"illustrator-server/internal/imagecheck"
)

const (
	describeSystemPrompt = "You are an assistant that describes character appearance in reference images. List hair color and style, eye color, notable facial features, body type and distinguishing marks as a short comma-separated phrase. Do not describe clothing or background."

	critiqueSystemPrompt = "You are a strict art reviewer. Given a generation prompt and the produced illustration, answer with a single line: SCORE=<0-100> followed by one short sentence naming the biggest mismatch, if any."
)

// Client оборачивает vision-модель OpenAI-совместимого API.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// New создает vision-клиент. baseURL пустой — используется api.openai.com.
func New(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("vision: api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("vision"),
	}, nil
}

// DescribeCharacter возвращает текстовое описание черт персонажа по байтам
// референсного изображения.
func (c *Client) DescribeCharacter(ctx context.Context, imageData []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: describeSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Describe this character's appearance.",
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL(imageData)},
					},
				},
			},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("vision describe request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("vision: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Critique — оценка соответствия иллюстрации промпту, 0–100.
type Critique struct {
	Score   int
	Comment string
}

// CritiqueImage просит модель оценить готовую иллюстрацию относительно промпта.
func (c *Client) CritiqueImage(ctx context.Context, prompt string, imageData []byte) (*Critique, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: critiqueSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Generation prompt:\n" + prompt,
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL(imageData)},
					},
				},
			},
		},
		MaxTokens:   120,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("vision critique request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision: empty critique response")
	}
	critique, err := parseCritique(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Unparsable critique response", zap.String("raw", resp.Choices[0].Message.Content))
		return nil, err
	}
	return critique, nil
}

func dataURL(imageData []byte) string {
	contentType := imagecheck.SniffFormat(imageData).ContentType()
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(imageData)
}

// parseCritique разбирает строку вида "SCORE=85 small mismatch in lighting".
func parseCritique(raw string) (*Critique, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, "SCORE=")
	if idx < 0 {
		return nil, errors.New("vision: critique response missing score")
	}
	rest := raw[idx+len("SCORE="):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil, errors.New("vision: critique score is not a number")
	}
	score, err := strconv.Atoi(rest[:end])
	if err != nil || score < 0 || score > 100 {
		return nil, errors.New("vision: critique score out of range")
	}
	return &Critique{
		Score:   score,
		Comment: strings.TrimSpace(rest[end:]),
	}, nil
}
