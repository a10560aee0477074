package mocks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"illustrator-server/internal/models"
)

// Mock StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, id)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

// Mock SceneRepository
type SceneRepository struct {
	mock.Mock
}

func (m *SceneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	args := m.Called(ctx, id)
	scene, _ := args.Get(0).(*models.Scene)
	return scene, args.Error(1)
}
func (m *SceneRepository) ListByStoryAscending(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	args := m.Called(ctx, storyID)
	scenes, _ := args.Get(0).([]*models.Scene)
	return scenes, args.Error(1)
}
func (m *SceneRepository) UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, message string) error {
	args := m.Called(ctx, id, status, message)
	return args.Error(0)
}
func (m *SceneRepository) SetCompleted(ctx context.Context, id uuid.UUID, imageURL, prompt string, states map[string]models.AppearanceSnapshot, details json.RawMessage) error {
	args := m.Called(ctx, id, imageURL, prompt, states, details)
	return args.Error(0)
}
func (m *SceneRepository) SetError(ctx context.Context, id uuid.UUID, message string, details json.RawMessage) error {
	args := m.Called(ctx, id, message, details)
	return args.Error(0)
}
func (m *SceneRepository) ResetByStory(ctx context.Context, storyID uuid.UUID) (int64, error) {
	args := m.Called(ctx, storyID)
	return args.Get(0).(int64), args.Error(1)
}

// Mock CharacterRepository
type CharacterRepository struct {
	mock.Mock
}

func (m *CharacterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	args := m.Called(ctx, storyID)
	characters, _ := args.Get(0).([]*models.Character)
	return characters, args.Error(1)
}

// Mock AttemptRepository
type AttemptRepository struct {
	mock.Mock
}

func (m *AttemptRepository) Create(ctx context.Context, attempt *models.GenerationAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}
func (m *AttemptRepository) Finalize(ctx context.Context, requestID uuid.UUID, status models.AttemptStatus, creditedAmount int64, failureStage string) error {
	args := m.Called(ctx, requestID, status, creditedAmount, failureStage)
	return args.Error(0)
}
func (m *AttemptRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.GenerationAttempt, error) {
	args := m.Called(ctx, requestID)
	attempt, _ := args.Get(0).(*models.GenerationAttempt)
	return attempt, args.Error(1)
}
