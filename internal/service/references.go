package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"illustrator-server/internal/models"
)

// Префетч референсов — опциональная стадия: пропускается при нехватке
// бюджета времени, любой её сбой даёт лишь предупреждение.
const (
	referenceMargin    = 30 * time.Second
	maxReferenceImage  = 8 << 20 // 8 MiB
	referenceFetchSlot = 15 * time.Second
	referenceParallel  = 3
)

// prefetchCharacterTraits извлекает vision-описания черт персонажей из
// активных референс-листов и добавляет их в снапшоты внешности.
// Персонажи обрабатываются параллельно, т.к. каждый запрос — это сетевой
// round-trip к хранилищу плюс vision-провайдеру.
func (s *IllustrationService) prefetchCharacterTraits(ctx context.Context, st *pipelineState, characters []*models.Character) {
	if s.deps.Describer == nil {
		return
	}
	if time.Until(st.deadline) < referenceMargin {
		s.logger.Debug("Skipping reference prefetch, time budget too low")
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(referenceParallel)

	for _, ch := range characters {
		sheet := ch.ActiveReferenceSheet
		if sheet == nil || sheet.ImageURL == "" {
			continue
		}
		if _, ok := st.effective[ch.Name]; !ok {
			continue
		}

		g.Go(func() error {
			traits, err := s.characterTraits(gctx, sheet.ID.String(), sheet.ImageURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("Reference trait extraction failed",
					zap.String("character", ch.Name), zap.Error(err))
				st.warnings = append(st.warnings, fmt.Sprintf("reference image for %q could not be analyzed", ch.Name))
				return nil
			}
			snapshot := st.effective[ch.Name]
			if snapshot.Extra == nil {
				snapshot.Extra = map[string]string{}
			}
			snapshot.Extra["reference_traits"] = traits
			st.effective[ch.Name] = snapshot
			st.preprocess = append(st.preprocess, fmt.Sprintf("vision traits for %s", ch.Name))
			return nil
		})
	}

	// Ошибки уже учтены как предупреждения внутри горутин.
	_ = g.Wait()
}

// characterTraits — описание черт по референс-листу, с двумя уровнями кеша:
// описания по id листа и байты изображения по URL.
func (s *IllustrationService) characterTraits(ctx context.Context, sheetID, imageURL string) (string, error) {
	if s.deps.Traits != nil {
		if cached, ok := s.deps.Traits.Get(sheetID); ok {
			return string(cached), nil
		}
	}

	data, err := s.fetchReferenceImage(ctx, imageURL)
	if err != nil {
		return "", err
	}
	traits, err := s.deps.Describer.DescribeCharacter(ctx, data)
	if err != nil {
		return "", err
	}
	if s.deps.Traits != nil {
		s.deps.Traits.Set(sheetID, []byte(traits))
	}
	return traits, nil
}

func (s *IllustrationService) fetchReferenceImage(ctx context.Context, imageURL string) ([]byte, error) {
	if s.deps.RefImages != nil {
		if cached, ok := s.deps.RefImages.Get(imageURL); ok {
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, referenceFetchSlot)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference request: %w", err)
	}
	resp, err := s.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceImage+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read reference image body: %w", err)
	}
	if len(data) > maxReferenceImage {
		return nil, fmt.Errorf("reference image exceeds %d bytes", maxReferenceImage)
	}

	if s.deps.RefImages != nil {
		s.deps.RefImages.Set(imageURL, data)
	}
	return data, nil
}
