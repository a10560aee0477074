package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"illustrator-server/internal/models"
)

// DBTX абстрагирует pgxpool.Pool и pgx.Tx, чтобы репозитории могли работать
// как с пулом, так и внутри транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoryRepository читает истории (только то, что нужно оркестратору: владение и стиль).
type StoryRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
}

// SceneRepository — операции над сценами, используемые пайплайном генерации.
type SceneRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	// ListByStoryAscending возвращает все сцены истории по возрастанию scene_number.
	ListByStoryAscending(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error)
	// UpdateGenerationStatus переводит сцену в новый статус с человекочитаемым сообщением.
	UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, message string) error
	// SetCompleted записывает результат успешной генерации.
	SetCompleted(ctx context.Context, id uuid.UUID, imageURL, prompt string, states map[string]models.AppearanceSnapshot, details json.RawMessage) error
	// SetError переводит сцену в состояние ошибки вместе с отладочным payload.
	SetError(ctx context.Context, id uuid.UUID, message string, details json.RawMessage) error
	// ResetByStory возвращает все сцены истории в pending и очищает изображения.
	// Возвращает количество затронутых строк.
	ResetByStory(ctx context.Context, storyID uuid.UUID) (int64, error)
}

// CharacterRepository читает персонажей истории вместе с активными референс-листами.
type CharacterRepository interface {
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error)
}

// AttemptRepository — аудиторские записи попыток генерации.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.GenerationAttempt) error
	// Finalize завершает попытку ровно один раз; повторный вызов — no-op.
	Finalize(ctx context.Context, requestID uuid.UUID, status models.AttemptStatus, creditedAmount int64, failureStage string) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.GenerationAttempt, error)
}
