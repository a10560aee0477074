package styles

// IntensityBand — качественная характеристика силы стиля для текста промпта.
type IntensityBand string

const (
	BandMinimal  IntensityBand = "minimal"
	BandSubtle   IntensityBand = "subtle"
	BandModerate IntensityBand = "moderate"
	BandStrong   IntensityBand = "strong"
	BandMaximal  IntensityBand = "maximal"
)

// GenerationParams — числовые параметры генерации, выведенные из интенсивности.
type GenerationParams struct {
	Steps         int
	GuidanceScale float64
}

// Band переводит интенсивность 0–100 в качественную полосу.
func Band(intensity int) IntensityBand {
	switch {
	case intensity <= 10:
		return BandMinimal
	case intensity <= 35:
		return BandSubtle
	case intensity <= 65:
		return BandModerate
	case intensity <= 90:
		return BandStrong
	default:
		return BandMaximal
	}
}

// GuidanceText — текстовая вставка в промпт в зависимости от полосы.
func (b IntensityBand) GuidanceText(displayName string) string {
	switch b {
	case BandMinimal:
		return "with only a hint of " + displayName + " styling"
	case BandSubtle:
		return "with subtle " + displayName + " styling"
	case BandModerate:
		return "in a " + displayName + " style"
	case BandStrong:
		return "in a strong, consistent " + displayName + " style"
	case BandMaximal:
		return "fully committed to the " + displayName + " style, every element stylized"
	default:
		return ""
	}
}

// Базовые параметры по категориям. Строки таблицы индексированы полосой.
var paramsByCategory = map[Category]map[IntensityBand]GenerationParams{
	CategoryAnime: {
		BandMinimal:  {Steps: 20, GuidanceScale: 4.0},
		BandSubtle:   {Steps: 24, GuidanceScale: 5.0},
		BandModerate: {Steps: 28, GuidanceScale: 6.5},
		BandStrong:   {Steps: 32, GuidanceScale: 7.5},
		BandMaximal:  {Steps: 36, GuidanceScale: 8.5},
	},
	CategoryRealistic: {
		BandMinimal:  {Steps: 24, GuidanceScale: 3.5},
		BandSubtle:   {Steps: 28, GuidanceScale: 4.5},
		BandModerate: {Steps: 32, GuidanceScale: 5.5},
		BandStrong:   {Steps: 38, GuidanceScale: 6.5},
		BandMaximal:  {Steps: 44, GuidanceScale: 7.5},
	},
	CategoryPixel: {
		BandMinimal:  {Steps: 16, GuidanceScale: 5.0},
		BandSubtle:   {Steps: 18, GuidanceScale: 6.0},
		BandModerate: {Steps: 22, GuidanceScale: 7.0},
		BandStrong:   {Steps: 26, GuidanceScale: 8.0},
		BandMaximal:  {Steps: 30, GuidanceScale: 9.0},
	},
	Category3D: {
		BandMinimal:  {Steps: 22, GuidanceScale: 4.0},
		BandSubtle:   {Steps: 26, GuidanceScale: 5.0},
		BandModerate: {Steps: 30, GuidanceScale: 6.0},
		BandStrong:   {Steps: 34, GuidanceScale: 7.0},
		BandMaximal:  {Steps: 40, GuidanceScale: 8.0},
	},
	CategoryArtistic: {
		BandMinimal:  {Steps: 20, GuidanceScale: 4.5},
		BandSubtle:   {Steps: 24, GuidanceScale: 5.5},
		BandModerate: {Steps: 28, GuidanceScale: 6.5},
		BandStrong:   {Steps: 32, GuidanceScale: 7.5},
		BandMaximal:  {Steps: 36, GuidanceScale: 8.5},
	},
}

var defaultParams = map[IntensityBand]GenerationParams{
	BandMinimal:  {Steps: 20, GuidanceScale: 4.0},
	BandSubtle:   {Steps: 24, GuidanceScale: 5.0},
	BandModerate: {Steps: 28, GuidanceScale: 6.0},
	BandStrong:   {Steps: 32, GuidanceScale: 7.0},
	BandMaximal:  {Steps: 36, GuidanceScale: 8.0},
}

// Турбо-модели деградируют при высоком guidance: для них параметры
// фиксируются независимо от запрошенной интенсивности.
var turboOverrides = map[string]GenerationParams{
	"sana-turbo":      {Steps: 4, GuidanceScale: 1.5},
	"sdxl-turbo":      {Steps: 4, GuidanceScale: 1.0},
	"flux-schnell":    {Steps: 6, GuidanceScale: 1.5},
	"sd3-large-turbo": {Steps: 8, GuidanceScale: 2.0},
}

// IsTurboModel возвращает true для моделей с фиксированными низкими параметрами.
func IsTurboModel(model string) bool {
	_, ok := turboOverrides[model]
	return ok
}

// ParamsFor возвращает параметры генерации для категории стиля, интенсивности
// и конкретной модели. Для турбо-моделей интенсивность игнорируется.
func ParamsFor(category Category, intensity int, model string) GenerationParams {
	if p, ok := turboOverrides[model]; ok {
		return p
	}
	band := Band(intensity)
	if table, ok := paramsByCategory[category]; ok {
		if p, ok := table[band]; ok {
			return p
		}
	}
	return defaultParams[band]
}
