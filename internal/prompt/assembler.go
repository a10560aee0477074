// Package prompt собирает итоговый промпт для провайдера генерации:
// стилевые указания, текст сцены и приложение с внешностью персонажей,
// с учетом лимита длины конкретной модели.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"illustrator-server/internal/models"
	"illustrator-server/internal/styles"
)

// AssembleInput — все входные данные сборки промпта.
type AssembleInput struct {
	BasePrompt        string
	CharacterAppendix string
	Style             styles.Style
	StyleIntensity    int
	DisabledElements  []string
	// StyleGuidePositive — дополнительные позитивные указания из гайда истории.
	StyleGuidePositive string
	ProviderMaxLength  int
	// RequiredSubjects — имена персонажей, которые обязаны присутствовать
	// в итоговом тексте.
	RequiredSubjects []string
}

// Parts — разбивка промпта по источникам, попадает в отладочный payload сцены.
type Parts struct {
	StylePrefix   string `json:"style_prefix,omitempty"`
	StylePositive string `json:"style_positive,omitempty"`
	StyleGuide    string `json:"style_guide,omitempty"`
	IntensityText string `json:"intensity_text,omitempty"`
	Base          string `json:"base"`
	Appendix      string `json:"appendix,omitempty"`
}

// AssembleResult — собранный промпт и предупреждения сборки.
type AssembleResult struct {
	FullPrompt      string
	Truncated       bool
	MissingSubjects []string
	Parts           Parts
}

// Assemble склеивает части промпта в фиксированном порядке приоритета:
// стилевой префикс, позитивные указания стиля, гайд, текст сцены, приложение
// с персонажами. При превышении лимита текст обрезается по рунам с конца.
func Assemble(in AssembleInput) (AssembleResult, error) {
	base := strings.TrimSpace(in.BasePrompt)
	if base == "" {
		return AssembleResult{}, models.ErrEmptyPrompt
	}

	parts := Parts{Base: base}
	segments := []string{}

	if in.Style.ID != styles.StyleNone && in.Style.ID != "" {
		parts.StylePrefix = strings.TrimSpace(in.Style.Prefix)
		if parts.StylePrefix != "" {
			segments = append(segments, parts.StylePrefix)
		}
		parts.StylePositive = in.Style.PositiveWithout(in.DisabledElements)
		if parts.StylePositive != "" {
			segments = append(segments, parts.StylePositive+".")
		}
		parts.IntensityText = styles.Band(in.StyleIntensity).GuidanceText(in.Style.DisplayName)
		if parts.IntensityText != "" {
			segments = append(segments, strings.ToUpper(parts.IntensityText[:1])+parts.IntensityText[1:]+".")
		}
	}
	if guide := strings.TrimSpace(in.StyleGuidePositive); guide != "" {
		parts.StyleGuide = guide
		segments = append(segments, guide+".")
	}
	segments = append(segments, base)
	if appendix := strings.TrimSpace(in.CharacterAppendix); appendix != "" {
		parts.Appendix = appendix
		segments = append(segments, appendix)
	}

	full := strings.Join(segments, " ")
	truncated := false
	if in.ProviderMaxLength > 0 {
		runes := []rune(full)
		if len(runes) > in.ProviderMaxLength {
			full = strings.TrimSpace(string(runes[:in.ProviderMaxLength]))
			truncated = true
		}
	}

	return AssembleResult{
		FullPrompt:      full,
		Truncated:       truncated,
		MissingSubjects: missingSubjects(full, in.RequiredSubjects),
		Parts:           parts,
	}, nil
}

// missingSubjects возвращает имена, чья lowercase-форма не встречается
// в собранном тексте. Обычно это следствие усечения.
func missingSubjects(full string, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	lower := strings.ToLower(full)
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(name)) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateStyleApplied проверяет, что в промпте присутствует хотя бы один
// маркер выбранного стиля. В строгом режиме отсутствие маркеров — жесткая
// ошибка (до какого-либо списания кредитов), иначе — предупреждение.
func ValidateStyleApplied(fullPrompt string, style styles.Style, strict bool) (warning string, err error) {
	markers := style.Markers()
	if len(markers) == 0 {
		return "", nil
	}
	lower := strings.ToLower(fullPrompt)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return "", nil
		}
	}
	if strict {
		return "", models.ErrStyleNotApplied
	}
	return "style '" + style.ID + "' markers not found in assembled prompt", nil
}

// Hash возвращает hex SHA-256 промпта для записи в consistency_details.
func Hash(fullPrompt string) string {
	sum := sha256.Sum256([]byte(fullPrompt))
	return hex.EncodeToString(sum[:])
}
