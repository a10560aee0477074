package models

import "errors"

// Стандартные ошибки сервиса иллюстраций
var (
	// Common Resource/DB Errors
	ErrNotFound          = errors.New("resource not found")
	ErrSceneNotFound     = errors.New("scene not found")
	ErrStoryNotFound     = errors.New("story not found")
	ErrCharacterNotFound = errors.New("character not found")

	// Authentication / Authorization
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden") // Аутентифицирован, но не владелец ресурса

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Credit Ledger Errors
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrReservationNotFound  = errors.New("reservation not found for request")
	ErrAlreadyCommitted     = errors.New("request already committed")
	ErrReservationConflict  = errors.New("concurrent reservation conflict")
	ErrLedgerUnavailable    = errors.New("credit ledger unavailable")
	ErrAccountNotFound      = errors.New("credit account not found")
	ErrDuplicateTransaction = errors.New("duplicate ledger transaction")

	// Prompt / Style Errors
	ErrEmptyPrompt     = errors.New("assembled prompt is empty")
	ErrStyleNotApplied = errors.New("style markers missing from assembled prompt")
	ErrUnknownStyle    = errors.New("unknown art style")
	ErrModelNotAllowed = errors.New("model is not in the allow-list")

	// Generation Errors
	ErrBlankImage        = errors.New("generated image is blank")
	ErrImageTooSmall     = errors.New("generated image data is implausibly small")
	ErrUnknownImage      = errors.New("unrecognized image format")
	ErrGenerationFailed  = errors.New("image generation failed")
	ErrTimeBudgetExpired = errors.New("pipeline time budget exhausted")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)

// PipelineStage идентифицирует фазу пайплайна, на которой произошёл сбой.
// Значения попадают в ответ API и в запись generation_attempts.
type PipelineStage string

const (
	StageValidation         PipelineStage = "validation"
	StageCreditsReservation PipelineStage = "credits_reservation"
	StageAppearance         PipelineStage = "appearance_resolution"
	StageStyleValidation    PipelineStage = "style_validation"
	StageUpstreamGeneration PipelineStage = "upstream_generation"
	StageBlankImage         PipelineStage = "blank_image"
	StageStorageUpload      PipelineStage = "storage_upload"
	StageSceneUpdate        PipelineStage = "scene_update"
	StageCreditCommit       PipelineStage = "credit_commit"
	StageUnexpected         PipelineStage = "unexpected_exception"
)

// PipelineError несёт стадию сбоя и HTTP-статус для ответа клиенту.
// Оборачивает исходную ошибку, чтобы errors.Is продолжал работать.
type PipelineError struct {
	Stage   PipelineStage
	Status  int
	Details string
	// RequestID коррелирует ответ об ошибке с аудиторской записью.
	RequestID string
	// Credits — доступный остаток на момент ошибки; nil, если неизвестен.
	Credits *int64
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Details != "" {
		return string(e.Stage) + ": " + e.Details
	}
	if e.Err != nil {
		return string(e.Stage) + ": " + e.Err.Error()
	}
	return string(e.Stage)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError создает PipelineError для указанной стадии.
func NewPipelineError(stage PipelineStage, status int, err error, details string) *PipelineError {
	return &PipelineError{Stage: stage, Status: status, Err: err, Details: details}
}
