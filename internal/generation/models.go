package generation

import (
	"illustrator-server/internal/models"
	"illustrator-server/internal/styles"
)

// Имена провайдеров в реестре движка.
const (
	ProviderOpenAI    = "openai"
	ProviderDiffusion = "diffusion"
)

// FallbackModelID — единственная модель, на которую разрешён ретрай при
// ошибке «неизвестная модель» у автоматически выбранной модели.
const FallbackModelID = "gpt-image-1"

// ModelSpec описывает модель из фиксированного allow-list.
type ModelSpec struct {
	ID       string
	Provider string
	Category styles.Category
	// MaxPromptLength 0 — используется лимит провайдера.
	MaxPromptLength int
}

var allowedModels = map[string]ModelSpec{
	"gpt-image-1": {
		ID:              "gpt-image-1",
		Provider:        ProviderOpenAI,
		Category:        styles.CategoryRealistic,
		MaxPromptLength: 4000,
	},
	"sana-base": {
		ID:              "sana-base",
		Provider:        ProviderDiffusion,
		Category:        styles.CategoryAnime,
		MaxPromptLength: 1500,
	},
	"sana-turbo": {
		ID:              "sana-turbo",
		Provider:        ProviderDiffusion,
		Category:        styles.CategoryAnime,
		MaxPromptLength: 1500,
	},
	"sdxl-turbo": {
		ID:              "sdxl-turbo",
		Provider:        ProviderDiffusion,
		Category:        styles.CategoryPixel,
		MaxPromptLength: 1000,
	},
	"sd3-large-turbo": {
		ID:              "sd3-large-turbo",
		Provider:        ProviderDiffusion,
		Category:        styles.Category3D,
		MaxPromptLength: 1500,
	},
	"flux-schnell": {
		ID:              "flux-schnell",
		Provider:        ProviderDiffusion,
		Category:        styles.CategoryArtistic,
		MaxPromptLength: 1200,
	},
}

// Статическая таблица предпочтений: категория стиля → модель.
var preferredByCategory = map[styles.Category]string{
	styles.CategoryAnime:     "sana-base",
	styles.CategoryRealistic: "gpt-image-1",
	styles.CategoryPixel:     "sdxl-turbo",
	styles.Category3D:        "sd3-large-turbo",
	styles.CategoryArtistic:  "flux-schnell",
}

const defaultModelID = "gpt-image-1"

// ModelSelection — результат выбора модели.
type ModelSelection struct {
	Spec ModelSpec
	// Explicit — модель задана вызывающей стороной; fallback-ретрай запрещён.
	Explicit bool
	// CategoryMismatch — явная модель не из рекомендованных для категории
	// стиля; при строгом стиле пишется предупреждение, но не блокирует.
	CategoryMismatch bool
}

// SelectModel выбирает модель: явную (с проверкой allow-list) либо
// предпочтительную для категории стиля.
func SelectModel(explicit string, category styles.Category) (ModelSelection, error) {
	if explicit != "" {
		spec, ok := allowedModels[explicit]
		if !ok {
			return ModelSelection{}, models.ErrModelNotAllowed
		}
		return ModelSelection{
			Spec:             spec,
			Explicit:         true,
			CategoryMismatch: category != "" && spec.Category != category,
		}, nil
	}
	id, ok := preferredByCategory[category]
	if !ok {
		id = defaultModelID
	}
	return ModelSelection{Spec: allowedModels[id]}, nil
}

// ModelByID возвращает спецификацию модели из allow-list.
func ModelByID(id string) (ModelSpec, bool) {
	spec, ok := allowedModels[id]
	return spec, ok
}
