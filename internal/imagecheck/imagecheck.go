// Package imagecheck валидирует байты изображения, полученные от провайдера:
// определяет контейнер по сигнатуре и оценивает «пустоту» картинки дешёвой
// выборочной статистикой по пикселям.
package imagecheck

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"

	"illustrator-server/internal/models"
)

// Format — контейнер изображения, определённый по магическим байтам.
type Format string

const (
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatWEBP    Format = "webp"
	FormatUnknown Format = ""
)

// MinPlausibleBytes — порог, ниже которого ответ провайдера заведомо не
// является изображением (обрывок JSON, пустое тело).
const MinPlausibleBytes = 256

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// SniffFormat определяет формат по сигнатуре, а не по заявленному Content-Type.
// Для WEBP проверяется и RIFF-контейнер, и тег WEBP по смещению 8.
func SniffFormat(b []byte) Format {
	switch {
	case len(b) >= 8 && bytes.Equal(b[:8], pngMagic):
		return FormatPNG
	case len(b) >= 3 && bytes.Equal(b[:3], jpegMagic):
		return FormatJPEG
	case len(b) >= 12 && bytes.Equal(b[:4], riffMagic) && bytes.Equal(b[8:12], webpMagic):
		return FormatWEBP
	default:
		return FormatUnknown
	}
}

// ContentType возвращает MIME-тип формата для загрузки в хранилище.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension возвращает расширение файла для формата.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatWEBP:
		return "webp"
	default:
		return "bin"
	}
}

// Stats — выборочная статистика по пикселям изображения.
type Stats struct {
	Format           Format
	Width            int
	Height           int
	LumaMean         float64
	LumaStdDev       float64
	UniqueColors     int
	FullyTransparent bool
}

// Пороговые значения пустой картинки.
const (
	blankStdDevThreshold = 5.0
	blankColorThreshold  = 10
	// Шаг сетки выборки подбирается так, чтобы просмотреть не более
	// ~4096 пикселей независимо от размера изображения.
	maxSamplesPerAxis = 64
)

// Validate выполняет полный цикл проверок: длина, формат, декодирование,
// статистика пустоты. Возвращает статистику и первую обнаруженную ошибку.
func Validate(b []byte) (*Stats, error) {
	if len(b) < MinPlausibleBytes {
		return nil, models.ErrImageTooSmall
	}
	format := SniffFormat(b)
	if format == FormatUnknown {
		return nil, models.ErrUnknownImage
	}
	stats, err := Analyze(b)
	if err != nil {
		return nil, err
	}
	stats.Format = format
	if stats.IsBlank() {
		return stats, models.ErrBlankImage
	}
	return stats, nil
}

// Analyze декодирует изображение и считает статистику по страйдовой сетке:
// среднее и дисперсию яркости, число квантованных уникальных цветов,
// признак полной прозрачности.
func Analyze(b []byte) (*Stats, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, models.ErrUnknownImage
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, models.ErrUnknownImage
	}

	strideX := w / maxSamplesPerAxis
	if strideX < 1 {
		strideX = 1
	}
	strideY := h / maxSamplesPerAxis
	if strideY < 1 {
		strideY = 1
	}

	var (
		sum, sumSq   float64
		samples      int
		anyOpaque    bool
		uniqueColors = make(map[uint32]struct{})
	)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			r, g, bl, a := img.At(x, y).RGBA()
			if a > 0 {
				anyOpaque = true
			}
			// Rec. 601 luma на 8-битных значениях
			r8, g8, b8 := r>>8, g>>8, bl>>8
			luma := 0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8)
			sum += luma
			sumSq += luma * luma
			samples++
			// Квантование до 4 бит на канал
			key := (r8>>4)<<8 | (g8>>4)<<4 | (b8 >> 4)
			uniqueColors[key] = struct{}{}
		}
	}

	mean := sum / float64(samples)
	variance := sumSq/float64(samples) - mean*mean
	if variance < 0 {
		variance = 0
	}

	return &Stats{
		Width:            w,
		Height:           h,
		LumaMean:         mean,
		LumaStdDev:       math.Sqrt(variance),
		UniqueColors:     len(uniqueColors),
		FullyTransparent: !anyOpaque,
	}, nil
}

// IsBlank — картинка считается пустой, если она полностью прозрачна, либо
// бедна по разбросу яркости, либо по числу цветов. Каждый признак
// самодостаточен: залитый одним тоном кадр режется по цветам, а равнояркая
// многоцветная заглушка — по разбросу яркости.
func (s *Stats) IsBlank() bool {
	if s.FullyTransparent {
		return true
	}
	return s.LumaStdDev < blankStdDevThreshold || s.UniqueColors < blankColorThreshold
}
