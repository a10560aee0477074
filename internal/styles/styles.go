// Package styles содержит реестр художественных стилей: префиксы промптов,
// маркеры применения стиля и таблицы соответствия интенсивности параметрам
// генерации.
package styles

import (
	"strings"

	"illustrator-server/internal/models"
)

// Category — категория стиля, определяет предпочтительные модели.
type Category string

const (
	CategoryAnime     Category = "anime"
	CategoryRealistic Category = "realistic"
	CategoryPixel     Category = "pixel"
	Category3D        Category = "3d"
	CategoryArtistic  Category = "artistic"
)

// Style описывает один художественный стиль.
type Style struct {
	ID          string
	DisplayName string
	Category    Category
	// Prefix идет первым в собранном промпте.
	Prefix string
	// Positive — позитивные указания стиля, добавляются после префикса.
	Positive string
	// Elements — опциональные элементы стиля, которые клиент может отключить
	// через disabledStyleElements.
	Elements map[string]string
}

// StyleNone — идентификатор «без стиля»: валидация маркеров не применяется.
const StyleNone = "none"

var registry = map[string]Style{
	"anime": {
		ID:          "anime",
		DisplayName: "Anime",
		Category:    CategoryAnime,
		Prefix:      "anime illustration,",
		Positive:    "clean lineart, expressive eyes, vibrant cel shading",
		Elements: map[string]string{
			"speedlines": "dynamic speedlines",
			"sparkles":   "decorative sparkles",
		},
	},
	"manga": {
		ID:          "manga",
		DisplayName: "Manga",
		Category:    CategoryAnime,
		Prefix:      "black and white manga panel,",
		Positive:    "screentone shading, bold ink lines",
		Elements: map[string]string{
			"screentone": "heavy screentone texture",
		},
	},
	"cinematic": {
		ID:          "cinematic",
		DisplayName: "Cinematic",
		Category:    CategoryRealistic,
		Prefix:      "cinematic film still,",
		Positive:    "dramatic lighting, shallow depth of field, photorealistic detail",
		Elements: map[string]string{
			"grain": "subtle film grain",
		},
	},
	"realistic": {
		ID:          "realistic",
		DisplayName: "Realistic",
		Category:    CategoryRealistic,
		Prefix:      "photorealistic digital painting,",
		Positive:    "natural lighting, accurate anatomy, fine texture detail",
	},
	"pixel_art": {
		ID:          "pixel_art",
		DisplayName: "Pixel Art",
		Category:    CategoryPixel,
		Prefix:      "pixel art scene,",
		Positive:    "16-bit palette, crisp pixels, no anti-aliasing",
	},
	"render_3d": {
		ID:          "render_3d",
		DisplayName: "3D Render",
		Category:    Category3D,
		Prefix:      "stylized 3d render,",
		Positive:    "soft global illumination, subsurface scattering",
	},
	"watercolor": {
		ID:          "watercolor",
		DisplayName: "Watercolor",
		Category:    CategoryArtistic,
		Prefix:      "watercolor painting,",
		Positive:    "soft washes, visible paper texture, loose brushwork",
	},
	"oil_painting": {
		ID:          "oil_painting",
		DisplayName: "Oil Painting",
		Category:    CategoryArtistic,
		Prefix:      "classical oil painting,",
		Positive:    "rich impasto, warm glazing, canvas texture",
	},
}

// Get возвращает стиль по идентификатору.
func Get(id string) (Style, error) {
	if id == "" || id == StyleNone {
		return Style{ID: StyleNone}, nil
	}
	s, ok := registry[id]
	if !ok {
		return Style{}, models.ErrUnknownStyle
	}
	return s, nil
}

// IsKnown возвращает true для зарегистрированного стиля или "none".
func IsKnown(id string) bool {
	if id == "" || id == StyleNone {
		return true
	}
	_, ok := registry[id]
	return ok
}

// Markers — литеральные подстроки, хотя бы одна из которых должна
// присутствовать в собранном промпте как свидетельство применения стиля:
// префикс, отображаемое имя и идентификатор с пробелами вместо подчеркиваний.
func (s Style) Markers() []string {
	if s.ID == StyleNone {
		return nil
	}
	markers := []string{}
	if p := strings.TrimSuffix(strings.TrimSpace(s.Prefix), ","); p != "" {
		markers = append(markers, p)
	}
	if s.DisplayName != "" {
		markers = append(markers, s.DisplayName)
	}
	markers = append(markers, strings.ReplaceAll(s.ID, "_", " "))
	return markers
}

// PositiveWithout возвращает позитивные указания стиля, исключая отключенные
// клиентом элементы.
func (s Style) PositiveWithout(disabled []string) string {
	parts := []string{}
	if s.Positive != "" {
		parts = append(parts, s.Positive)
	}
	if len(s.Elements) > 0 {
		disabledSet := make(map[string]struct{}, len(disabled))
		for _, d := range disabled {
			disabledSet[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
		// Детерминированный порядок не требуется для качества промпта,
		// но нужен для воспроизводимости prompt_hash
		for _, key := range sortedKeys(s.Elements) {
			if _, off := disabledSet[key]; !off {
				parts = append(parts, s.Elements[key])
			}
		}
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
