package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ SceneRepository = (*pgSceneRepository)(nil)

const (
	getSceneByIDQuery = `
SELECT id, story_id, scene_number, title, summary, original_text, setting,
       emotional_tone, image_prompt, image_url, character_names, character_states,
       generation_status, status_message, consistency_details, created_at, updated_at
FROM scenes
WHERE id = $1`

	listScenesByStoryQuery = `
SELECT id, story_id, scene_number, title, summary, original_text, setting,
       emotional_tone, image_prompt, image_url, character_names, character_states,
       generation_status, status_message, consistency_details, created_at, updated_at
FROM scenes
WHERE story_id = $1
ORDER BY scene_number ASC`

	updateSceneStatusQuery = `
UPDATE scenes SET generation_status = $2, status_message = $3, updated_at = NOW()
WHERE id = $1`

	setSceneCompletedQuery = `
UPDATE scenes
SET generation_status = 'completed', status_message = '', image_url = $2,
    image_prompt = $3, character_states = $4, consistency_details = $5, updated_at = NOW()
WHERE id = $1`

	setSceneErrorQuery = `
UPDATE scenes
SET generation_status = 'error', status_message = $2, consistency_details = $3, updated_at = NOW()
WHERE id = $1`

	resetScenesByStoryQuery = `
UPDATE scenes
SET generation_status = 'pending', status_message = '', image_url = '',
    consistency_details = NULL, updated_at = NOW()
WHERE story_id = $1`
)

type pgSceneRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSceneRepository создает репозиторий сцен поверх PostgreSQL.
func NewPgSceneRepository(db DBTX, logger *zap.Logger) SceneRepository {
	return &pgSceneRepository{
		db:     db,
		logger: logger.Named("PgSceneRepo"),
	}
}

// sceneRow — промежуточная структура для сканирования JSONB-колонок.
type sceneRow struct {
	ID                 uuid.UUID        `db:"id"`
	StoryID            uuid.UUID        `db:"story_id"`
	SceneNumber        int              `db:"scene_number"`
	Title              string           `db:"title"`
	Summary            string           `db:"summary"`
	OriginalText       string           `db:"original_text"`
	Setting            string           `db:"setting"`
	EmotionalTone      string           `db:"emotional_tone"`
	ImagePrompt        string           `db:"image_prompt"`
	ImageURL           string           `db:"image_url"`
	CharacterNames     []string         `db:"character_names"`
	CharacterStates    json.RawMessage  `db:"character_states"`
	GenerationStatus   string           `db:"generation_status"`
	StatusMessage      string           `db:"status_message"`
	ConsistencyDetails *json.RawMessage `db:"consistency_details"`
	CreatedAt          time.Time        `db:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at"`
}

func (row *sceneRow) toModel() (*models.Scene, error) {
	scene := &models.Scene{
		ID:               row.ID,
		StoryID:          row.StoryID,
		SceneNumber:      row.SceneNumber,
		Title:            row.Title,
		Summary:          row.Summary,
		OriginalText:     row.OriginalText,
		Setting:          row.Setting,
		EmotionalTone:    row.EmotionalTone,
		ImagePrompt:      row.ImagePrompt,
		ImageURL:         row.ImageURL,
		CharacterNames:   row.CharacterNames,
		GenerationStatus: models.GenerationStatus(row.GenerationStatus),
		StatusMessage:    row.StatusMessage,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.ConsistencyDetails != nil {
		scene.ConsistencyDetails = *row.ConsistencyDetails
	}
	if len(row.CharacterStates) > 0 {
		if err := json.Unmarshal(row.CharacterStates, &scene.CharacterStates); err != nil {
			return nil, fmt.Errorf("ошибка десериализации character_states: %w", err)
		}
	}
	return scene, nil
}

// GetByID возвращает сцену по идентификатору.
func (r *pgSceneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	var row sceneRow
	err := pgxscan.Get(ctx, r.db, &row, getSceneByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Scene not found", zap.String("sceneID", id.String()))
			return nil, models.ErrSceneNotFound
		}
		r.logger.Error("Failed to get scene", zap.String("sceneID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения сцены %s: %w", id, err)
	}
	return row.toModel()
}

// ListByStoryAscending возвращает сцены истории по возрастанию scene_number.
func (r *pgSceneRepository) ListByStoryAscending(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	var rows []*sceneRow
	if err := pgxscan.Select(ctx, r.db, &rows, listScenesByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to list scenes", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения сцен истории %s: %w", storyID, err)
	}
	scenes := make([]*models.Scene, 0, len(rows))
	for _, row := range rows {
		scene, err := row.toModel()
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// UpdateGenerationStatus переводит сцену в новый статус.
func (r *pgSceneRepository) UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, message string) error {
	tag, err := r.db.Exec(ctx, updateSceneStatusQuery, id, string(status), message)
	if err != nil {
		r.logger.Error("Failed to update scene status", zap.String("sceneID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса сцены %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSceneNotFound
	}
	r.logger.Debug("Scene status updated", zap.String("sceneID", id.String()), zap.String("status", string(status)))
	return nil
}

// SetCompleted записывает результат успешной генерации.
func (r *pgSceneRepository) SetCompleted(ctx context.Context, id uuid.UUID, imageURL, prompt string, states map[string]models.AppearanceSnapshot, details json.RawMessage) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("ошибка сериализации character_states: %w", err)
	}
	tag, err := r.db.Exec(ctx, setSceneCompletedQuery, id, imageURL, prompt, statesJSON, details)
	if err != nil {
		r.logger.Error("Failed to mark scene completed", zap.String("sceneID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка завершения сцены %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSceneNotFound
	}
	r.logger.Info("Scene marked completed", zap.String("sceneID", id.String()))
	return nil
}

// SetError переводит сцену в состояние ошибки.
func (r *pgSceneRepository) SetError(ctx context.Context, id uuid.UUID, message string, details json.RawMessage) error {
	tag, err := r.db.Exec(ctx, setSceneErrorQuery, id, message, details)
	if err != nil {
		r.logger.Error("Failed to mark scene errored", zap.String("sceneID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи ошибки сцены %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSceneNotFound
	}
	return nil
}

// ResetByStory возвращает все сцены истории в pending.
func (r *pgSceneRepository) ResetByStory(ctx context.Context, storyID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, resetScenesByStoryQuery, storyID)
	if err != nil {
		r.logger.Error("Failed to reset scenes", zap.String("storyID", storyID.String()), zap.Error(err))
		return 0, fmt.Errorf("ошибка сброса сцен истории %s: %w", storyID, err)
	}
	r.logger.Info("Scenes reset to pending", zap.String("storyID", storyID.String()), zap.Int64("count", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
