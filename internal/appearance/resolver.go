// Package appearance вычисляет эффективный внешний вид персонажей сцены,
// протаскивая состояние вперед по истории предыдущих сцен.
package appearance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"illustrator-server/internal/models"
)

// Defaults — канонические значения персонажа, используемые как fallback.
type Defaults struct {
	Clothing           string
	PhysicalAttributes string
}

// Result — результат резолюции для одной сцены.
type Result struct {
	// EffectiveByName — эффективный снапшот каждого запрошенного персонажа.
	EffectiveByName map[string]models.AppearanceSnapshot
	// MissingClothing — персонажи, у которых после всех fallback не нашлось
	// одежды. Мягкое предупреждение, не ошибка.
	MissingClothing []string
}

// Resolve вычисляет эффективный вид персонажей для целевой сцены.
//
// history — предшествующие сцены по возрастанию scene_number (целевая сцена
// идет последней, если ее собственные снапшоты уже записаны). Правила:
//   - clothing, state и physical_attributes протаскиваются вперед: действует
//     последнее непустое значение;
//   - аксессуары НЕ протаскиваются — реквизит одной сцены не должен молча
//     всплывать в последующих. Аксессуар валиден, только если он явно записан
//     в снапшоте самой последней (текущей) сцены;
//   - если истории нет, clothing и physical_attributes берутся из дефолтов
//     персонажа; у state дефолта нет — отсутствие значимо.
func Resolve(characterNames []string, history []*models.Scene, defaults map[string]Defaults) Result {
	effective := make(map[string]models.AppearanceSnapshot, len(characterNames))
	var missing []string

	lastIdx := len(history) - 1

	for _, name := range characterNames {
		var snap models.AppearanceSnapshot
		for i, scene := range history {
			state, ok := scene.CharacterStates[name]
			if !ok {
				continue
			}
			if state.Clothing != "" {
				snap.Clothing = state.Clothing
			}
			if state.State != "" {
				snap.State = state.State
			}
			if state.PhysicalAttributes != "" {
				snap.PhysicalAttributes = state.PhysicalAttributes
			}
			// Аксессуары учитываются только из снапшота текущей сцены
			if i == lastIdx {
				snap.Accessories = state.Accessories
				if len(state.Extra) > 0 {
					snap.Extra = state.Extra
				}
			}
		}

		def := defaults[name]
		if snap.Clothing == "" {
			snap.Clothing = def.Clothing
		}
		if snap.PhysicalAttributes == "" {
			snap.PhysicalAttributes = def.PhysicalAttributes
		}

		if snap.Clothing == "" {
			missing = append(missing, name)
		}
		effective[name] = snap
	}

	return Result{EffectiveByName: effective, MissingClothing: missing}
}

// AppendixText собирает человекочитаемый фрагмент промпта с внешностью
// персонажей. Порядок детерминирован (по имени).
func AppendixText(effective map[string]models.AppearanceSnapshot) string {
	if len(effective) == 0 {
		return ""
	}
	names := sortedNames(effective)

	var b strings.Builder
	b.WriteString("Character appearance: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		snap := effective[name]
		b.WriteString(name)

		var parts []string
		if snap.PhysicalAttributes != "" {
			parts = append(parts, snap.PhysicalAttributes)
		}
		if snap.Clothing != "" {
			parts = append(parts, "wearing "+snap.Clothing)
		}
		if snap.State != "" {
			parts = append(parts, snap.State)
		}
		if snap.Accessories != "" {
			parts = append(parts, "with "+snap.Accessories)
		}
		if len(parts) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(parts, ", "))
			b.WriteString(")")
		}
	}
	return b.String()
}

// StatesHash — детерминированный хэш содержимого снапшотов. Сохраняется со
// сценой: при регенерации оркестратор сравнивает хэши и пишет предупреждение
// в лог, если внешность с прошлого рендера изменилась (без блокировки).
func StatesHash(effective map[string]models.AppearanceSnapshot) string {
	names := sortedNames(effective)

	h := sha256.New()
	for _, name := range names {
		snap := effective[name]
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|", name, snap.Clothing, snap.State, snap.PhysicalAttributes, snap.Accessories)
		if len(snap.Extra) > 0 {
			extraKeys := make([]string, 0, len(snap.Extra))
			for k := range snap.Extra {
				extraKeys = append(extraKeys, k)
			}
			sort.Strings(extraKeys)
			for _, k := range extraKeys {
				fmt.Fprintf(h, "%s=%s|", k, snap.Extra[k])
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedNames(effective map[string]models.AppearanceSnapshot) []string {
	names := make([]string, 0, len(effective))
	for name := range effective {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
