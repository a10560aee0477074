package generation

import (
	"errors"
	"net/http"
	"strings"
)

// FailureReason — человекочитаемая категория сбоя провайдера. Используется
// в сообщении пользователю и в аудит-записи; никогда не влияет на поведение
// леджера — любой терминальный сбой ведёт к одному и тому же возврату.
type FailureReason string

const (
	ReasonRateLimited     FailureReason = "rate_limited"
	ReasonPaymentRequired FailureReason = "payment_required"
	ReasonAuthRejected    FailureReason = "auth_rejected"
	ReasonContentPolicy   FailureReason = "content_policy"
	ReasonMinorFlagged    FailureReason = "minor_flagged"
	ReasonHTMLErrorPage   FailureReason = "html_error_page"
	ReasonEmptyBody       FailureReason = "empty_body"
	ReasonInvalidModel    FailureReason = "invalid_model"
	ReasonUpstreamError   FailureReason = "upstream_error"
)

// ClassifyFailure сопоставляет ответ провайдера одной из категорий.
func ClassifyFailure(status int, headers http.Header, body string) FailureReason {
	lower := strings.ToLower(strings.TrimSpace(body))

	if lower == "" {
		return ReasonEmptyBody
	}
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") ||
		strings.Contains(headers.Get("Content-Type"), "text/html") {
		return ReasonHTMLErrorPage
	}

	switch status {
	case http.StatusTooManyRequests:
		return ReasonRateLimited
	case http.StatusPaymentRequired:
		return ReasonPaymentRequired
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuthRejected
	}

	if strings.Contains(lower, "minor") || strings.Contains(lower, "underage") {
		return ReasonMinorFlagged
	}
	if strings.Contains(lower, "content policy") || strings.Contains(lower, "safety system") ||
		strings.Contains(lower, "content_policy") || strings.Contains(lower, "moderation") {
		return ReasonContentPolicy
	}
	if isInvalidModelBody(status, lower) {
		return ReasonInvalidModel
	}
	return ReasonUpstreamError
}

// isInvalidModelBody — клиентская ошибка, чье тело указывает на
// неизвестную/невалидную модель. Единственный повод для fallback-ретрая.
func isInvalidModelBody(status int, lowerBody string) bool {
	if status < 400 || status >= 500 {
		return false
	}
	if !strings.Contains(lowerBody, "model") {
		return false
	}
	for _, marker := range []string{"invalid", "unknown", "not found", "does not exist", "unsupported", "no such"} {
		if strings.Contains(lowerBody, marker) {
			return true
		}
	}
	return false
}

// HTTPStatus — статус ответа нашего API для данной категории сбоя.
func (r FailureReason) HTTPStatus() int {
	switch r {
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonPaymentRequired:
		return http.StatusPaymentRequired
	case ReasonAuthRejected, ReasonUpstreamError, ReasonHTMLErrorPage, ReasonEmptyBody, ReasonInvalidModel:
		return http.StatusBadGateway
	case ReasonContentPolicy, ReasonMinorFlagged:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Message — человекочитаемое сообщение для пользователя.
func (r FailureReason) Message() string {
	switch r {
	case ReasonRateLimited:
		return "Генерация временно ограничена по частоте запросов, попробуйте чуть позже"
	case ReasonPaymentRequired:
		return "Исчерпан лимит внешнего провайдера генерации"
	case ReasonAuthRejected:
		return "Провайдер генерации отклонил авторизацию сервиса"
	case ReasonContentPolicy:
		return "Запрос отклонён политикой контента провайдера"
	case ReasonMinorFlagged:
		return "Запрос отклонён фильтром безопасности провайдера"
	case ReasonHTMLErrorPage:
		return "Провайдер генерации вернул некорректный ответ"
	case ReasonEmptyBody:
		return "Провайдер генерации вернул пустой ответ"
	case ReasonInvalidModel:
		return "Выбранная модель недоступна у провайдера"
	default:
		return "Ошибка внешнего провайдера генерации"
	}
}

// ClassifyError извлекает *UpstreamError и классифицирует его;
// для прочих ошибок (таймаут, обрыв сети) возвращает ReasonUpstreamError.
func ClassifyError(err error) FailureReason {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ClassifyFailure(ue.Status, ue.Headers, ue.Body)
	}
	return ReasonUpstreamError
}
