package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
)

var _ CharacterRepository = (*pgCharacterRepository)(nil)

// LEFT JOIN подтягивает активный (одобренный) референс-лист, если он назначен.
const listCharactersByStoryQuery = `
SELECT c.id, c.story_id, c.name, c.default_clothing, c.default_accessories,
       c.physical_attributes, c.created_at,
       rs.id AS sheet_id, rs.description AS sheet_description,
       rs.image_url AS sheet_image_url, rs.created_at AS sheet_created_at
FROM characters c
LEFT JOIN reference_sheets rs
  ON rs.id = c.active_reference_sheet_id AND rs.approved = TRUE
WHERE c.story_id = $1
ORDER BY c.name ASC`

type pgCharacterRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgCharacterRepository создает репозиторий персонажей поверх PostgreSQL.
func NewPgCharacterRepository(db DBTX, logger *zap.Logger) CharacterRepository {
	return &pgCharacterRepository{
		db:     db,
		logger: logger.Named("PgCharacterRepo"),
	}
}

type characterRow struct {
	ID                 uuid.UUID  `db:"id"`
	StoryID            uuid.UUID  `db:"story_id"`
	Name               string     `db:"name"`
	DefaultClothing    string     `db:"default_clothing"`
	DefaultAccessories string     `db:"default_accessories"`
	PhysicalAttributes string     `db:"physical_attributes"`
	CreatedAt          time.Time  `db:"created_at"`
	SheetID            *uuid.UUID `db:"sheet_id"`
	SheetDescription   *string    `db:"sheet_description"`
	SheetImageURL      *string    `db:"sheet_image_url"`
	SheetCreatedAt     *time.Time `db:"sheet_created_at"`
}

// ListByStory возвращает персонажей истории вместе с активными референс-листами.
func (r *pgCharacterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	var rows []*characterRow
	if err := pgxscan.Select(ctx, r.db, &rows, listCharactersByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to list characters", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения персонажей истории %s: %w", storyID, err)
	}

	characters := make([]*models.Character, 0, len(rows))
	for _, row := range rows {
		ch := &models.Character{
			ID:                 row.ID,
			StoryID:            row.StoryID,
			Name:               row.Name,
			DefaultClothing:    row.DefaultClothing,
			DefaultAccessories: row.DefaultAccessories,
			PhysicalAttributes: row.PhysicalAttributes,
			CreatedAt:          row.CreatedAt,
		}
		if row.SheetID != nil {
			sheet := &models.ReferenceSheet{
				ID:          *row.SheetID,
				CharacterID: row.ID,
				Approved:    true,
			}
			if row.SheetDescription != nil {
				sheet.Description = *row.SheetDescription
			}
			if row.SheetImageURL != nil {
				sheet.ImageURL = *row.SheetImageURL
			}
			if row.SheetCreatedAt != nil {
				sheet.CreatedAt = *row.SheetCreatedAt
			}
			ch.ActiveReferenceSheet = sheet
		}
		characters = append(characters, ch)
	}
	r.logger.Debug("Characters loaded", zap.String("storyID", storyID.String()), zap.Int("count", len(characters)))
	return characters, nil
}
