// Package credits реализует журнал кредитов: резервирование, подтверждение
// и возврат средств с идемпотентностью по request_id.
//
// Ключевой инвариант: для каждого request_id итоговое изменение баланса
// аккаунта равно либо -amount (успешная генерация), либо 0 (любой сбой) —
// никогда частичное или двойное списание.
package credits

import (
	"context"

	"github.com/google/uuid"
)

// FeatureIllustration — значение поля feature для генерации иллюстраций.
const FeatureIllustration = "scene_illustration"

// ReserveResult — результат успешного резервирования.
type ReserveResult struct {
	// MonthlyPart/BonusPart — как сумма разложена между лимитом и бонусами.
	MonthlyPart int64
	BonusPart   int64
	// Available — доступный остаток после операции (за вычетом резервов).
	Available int64
	// AlreadyReserved — true, если резерв для этого request_id уже существовал
	// (идемпотентный повтор того же запроса).
	AlreadyReserved bool
}

// CommitResult — результат подтверждения списания.
type CommitResult struct {
	Amount    int64
	Available int64
	// AlreadyCommitted — true, если usage-запись уже существовала; операция
	// вернула исходный результат без побочных эффектов.
	AlreadyCommitted bool
}

// Ledger — контракт журнала кредитов для оркестратора.
//
// Все операции атомарны на уровне хранилища: два конкурентных запроса одного
// пользователя не могут оба пройти проверку недостаточного баланса.
type Ledger interface {
	// Reserve удерживает amount кредитов под request_id.
	// Возвращает models.ErrInsufficientCredits, если доступный остаток
	// после резервирования стал бы отрицательным.
	Reserve(ctx context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*ReserveResult, error)

	// Commit конвертирует резерв в постоянное списание. Валиден только после
	// успешного Reserve того же request_id; идемпотентен.
	Commit(ctx context.Context, userID, requestID uuid.UUID, metadata map[string]any) (*CommitResult, error)

	// Consume — прямое списание без резерва (fallback-путь, когда механизм
	// резервирования недоступен). Идемпотентен по request_id.
	Consume(ctx context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*CommitResult, error)

	// Release снимает резерв. Если резерва не было, пишет аудиторскую запись
	// с нулевой суммой, чтобы история оставалась полной.
	Release(ctx context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error

	// ForceRefund — безусловный, идемпотентный путь восстановления: по истории
	// транзакций request_id возвращает аккаунту удержанную или списанную сумму
	// ровно один раз. Безопасен даже при неконсистентном состоянии резервов
	// (например, после падения посреди пайплайна).
	ForceRefund(ctx context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error

	// Available возвращает доступный остаток пользователя.
	Available(ctx context.Context, userID uuid.UUID) (int64, error)
}
