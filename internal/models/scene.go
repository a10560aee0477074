package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus статус генерации иллюстрации для сцены.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusGenerating GenerationStatus = "generating"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusError      GenerationStatus = "error"
)

// AppearanceSnapshot описывает внешний вид одного персонажа в одной сцене.
// Значение неизменяемо после записи: резолвер читает снапшоты прошлых сцен,
// но никогда их не модифицирует.
type AppearanceSnapshot struct {
	Clothing           string            `json:"clothing,omitempty"`
	State              string            `json:"state,omitempty"`
	PhysicalAttributes string            `json:"physical_attributes,omitempty"`
	Accessories        string            `json:"accessories,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// IsZero возвращает true, если снапшот не содержит ни одного поля.
func (s AppearanceSnapshot) IsZero() bool {
	return s.Clothing == "" && s.State == "" && s.PhysicalAttributes == "" &&
		s.Accessories == "" && len(s.Extra) == 0
}

// Scene представляет одну сцену истории.
type Scene struct {
	ID              uuid.UUID                     `db:"id" json:"id"`
	StoryID         uuid.UUID                     `db:"story_id" json:"storyId"`
	SceneNumber     int                           `db:"scene_number" json:"sceneNumber"`
	Title           string                        `db:"title" json:"title"`
	Summary         string                        `db:"summary" json:"summary"`
	OriginalText    string                        `db:"original_text" json:"originalText"`
	Setting         string                        `db:"setting" json:"setting"`
	EmotionalTone   string                        `db:"emotional_tone" json:"emotionalTone"`
	ImagePrompt     string                        `db:"image_prompt" json:"imagePrompt"`
	ImageURL        string                        `db:"image_url" json:"imageUrl"`
	CharacterNames  []string                      `db:"character_names" json:"characterNames"`
	CharacterStates map[string]AppearanceSnapshot `db:"character_states" json:"characterStates"`
	// GenerationStatus мутируется оркестратором на каждой стадии пайплайна.
	GenerationStatus GenerationStatus `db:"generation_status" json:"generationStatus"`
	StatusMessage    string           `db:"status_message" json:"statusMessage,omitempty"`
	// ConsistencyDetails — непрозрачный отладочный payload генерации
	// (модель, промпт, хэши, предупреждения). Достаточен для воспроизведения
	// сбоя по одним только персистентным данным.
	ConsistencyDetails json.RawMessage `db:"consistency_details" json:"consistencyDetails,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}

// ConsistencyDetails — структура отладочного payload, сериализуемого в сцену.
type ConsistencyDetails struct {
	RequestID           string   `json:"request_id"`
	Model               string   `json:"model"`
	Prompt              string   `json:"prompt"`
	PromptHash          string   `json:"prompt_hash"`
	CharacterStatesHash string   `json:"character_states_hash,omitempty"`
	PreprocessingSteps  []string `json:"preprocessing_steps,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
	FailureStage        string   `json:"failure_stage,omitempty"`
	FailureReason       string   `json:"failure_reason,omitempty"`
	ReservationBypassed bool     `json:"reservation_bypassed,omitempty"`
	ElapsedMS           int64    `json:"elapsed_ms,omitempty"`
}

// Story минимальная проекция истории, нужная оркестратору (владение и стиль).
type Story struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Title     string    `db:"title" json:"title"`
	ArtStyle  string    `db:"art_style" json:"artStyle"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Character принадлежит одной истории; хранит канонические описания по умолчанию.
type Character struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	StoryID            uuid.UUID `db:"story_id" json:"storyId"`
	Name               string    `db:"name" json:"name"`
	DefaultClothing    string    `db:"default_clothing" json:"defaultClothing"`
	DefaultAccessories string    `db:"default_accessories" json:"defaultAccessories"`
	PhysicalAttributes string    `db:"physical_attributes" json:"physicalAttributes"`
	// ActiveReferenceSheet — одобренное каноническое описание внешности
	// с опциональным референсным изображением. nil, если не назначено.
	ActiveReferenceSheet *ReferenceSheet `db:"-" json:"activeReferenceSheet,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"createdAt"`
}

// ReferenceSheet — канонический лист внешности персонажа.
type ReferenceSheet struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CharacterID uuid.UUID `db:"character_id" json:"characterId"`
	Description string    `db:"description" json:"description"`
	ImageURL    string    `db:"image_url" json:"imageUrl,omitempty"`
	Approved    bool      `db:"approved" json:"approved"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
