// Package generation — движок выполнения генерации: выбор модели и провайдера,
// вызов внешнего API, классификация сбоев, единственный fallback-ретрай и
// проверка качества полученного изображения.
package generation

import (
	"context"
	"fmt"
	"net/http"
)

// GenerateParams — параметры одного вызова провайдера.
type GenerateParams struct {
	Prompt        string
	Model         string
	Width         int
	Height        int
	Steps         int
	GuidanceScale float64
}

// Provider — один upstream «изображение из промпта».
type Provider interface {
	// Generate возвращает сырые байты изображения либо ошибку.
	// Ошибки HTTP-уровня оборачиваются в *UpstreamError.
	Generate(ctx context.Context, p GenerateParams) ([]byte, error)
	Name() string
	// MaxPromptLength — лимит длины промпта провайдера по умолчанию,
	// если модель не задаёт свой.
	MaxPromptLength() int
}

// UpstreamError несёт статус, заголовки и тело ответа провайдера —
// всё, что нужно классификатору сбоев.
type UpstreamError struct {
	Provider string
	Status   int
	Headers  http.Header
	Body     string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, body)
}
