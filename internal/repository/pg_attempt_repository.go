package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
)

var _ AttemptRepository = (*pgAttemptRepository)(nil)

const (
	createAttemptQuery = `
INSERT INTO generation_attempts (request_id, user_id, scene_id, status, credited_amount, failure_stage, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (request_id) DO NOTHING`

	// Финализация идемпотентна: предикат finalized_at IS NULL гарантирует,
	// что запись завершается ровно один раз.
	finalizeAttemptQuery = `
UPDATE generation_attempts
SET status = $2, credited_amount = $3, failure_stage = $4, finalized_at = NOW()
WHERE request_id = $1 AND finalized_at IS NULL`

	getAttemptQuery = `
SELECT request_id, user_id, scene_id, status, credited_amount, failure_stage, created_at, finalized_at
FROM generation_attempts
WHERE request_id = $1`
)

type pgAttemptRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgAttemptRepository создает репозиторий аудиторских записей генерации.
func NewPgAttemptRepository(db DBTX, logger *zap.Logger) AttemptRepository {
	return &pgAttemptRepository{
		db:     db,
		logger: logger.Named("PgAttemptRepo"),
	}
}

// Create создает запись о начатой попытке. Повторная вставка того же
// request_id — no-op (идемпотентный ретрай того же логического запроса).
func (r *pgAttemptRepository) Create(ctx context.Context, attempt *models.GenerationAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	if attempt.Status == "" {
		attempt.Status = models.AttemptStarted
	}
	_, err := r.db.Exec(ctx, createAttemptQuery,
		attempt.RequestID,
		attempt.UserID,
		attempt.SceneID,
		string(attempt.Status),
		attempt.CreditedAmount,
		attempt.FailureStage,
		attempt.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create generation attempt", zap.String("requestID", attempt.RequestID.String()), zap.Error(err))
		return fmt.Errorf("ошибка создания записи попытки: %w", err)
	}
	return nil
}

// Finalize завершает попытку. Повторный вызов не изменяет уже финализированную запись.
func (r *pgAttemptRepository) Finalize(ctx context.Context, requestID uuid.UUID, status models.AttemptStatus, creditedAmount int64, failureStage string) error {
	tag, err := r.db.Exec(ctx, finalizeAttemptQuery, requestID, string(status), creditedAmount, failureStage)
	if err != nil {
		r.logger.Error("Failed to finalize generation attempt", zap.String("requestID", requestID.String()), zap.Error(err))
		return fmt.Errorf("ошибка финализации попытки %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("Attempt already finalized", zap.String("requestID", requestID.String()))
	}
	return nil
}

// GetByRequestID возвращает запись попытки по request_id.
func (r *pgAttemptRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.GenerationAttempt, error) {
	var attempt models.GenerationAttempt
	err := pgxscan.Get(ctx, r.db, &attempt, getAttemptQuery, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения попытки %s: %w", requestID, err)
	}
	return &attempt, nil
}
