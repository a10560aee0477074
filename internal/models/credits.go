package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType тип записи в журнале кредитов.
type TransactionType string

const (
	TransactionReservation TransactionType = "reservation"
	TransactionUsage       TransactionType = "usage"
	TransactionRelease     TransactionType = "release"
	TransactionRefund      TransactionType = "refund"
)

// CreditAccount хранит баланс кредитов пользователя.
// Инварианты: used <= allowance; reserved <= allowance - used.
type CreditAccount struct {
	UserID           uuid.UUID `db:"user_id" json:"userId"`
	MonthlyAllowance int64     `db:"monthly_allowance" json:"monthlyAllowance"`
	MonthlyUsed      int64     `db:"monthly_used" json:"monthlyUsed"`
	BonusTotal       int64     `db:"bonus_total" json:"bonusTotal"`
	BonusUsed        int64     `db:"bonus_used" json:"bonusUsed"`
	ReservedMonthly  int64     `db:"reserved_monthly" json:"reservedMonthly"`
	ReservedBonus    int64     `db:"reserved_bonus" json:"reservedBonus"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Balance возвращает доступный остаток без учета резервов.
func (a *CreditAccount) Balance() int64 {
	b := a.MonthlyAllowance - a.MonthlyUsed + a.BonusTotal - a.BonusUsed
	if b < 0 {
		return 0
	}
	return b
}

// Available возвращает остаток за вычетом активных резервов.
func (a *CreditAccount) Available() int64 {
	b := a.Balance() - a.ReservedMonthly - a.ReservedBonus
	if b < 0 {
		return 0
	}
	return b
}

// CreditTransaction — строка append-only журнала.
// Для каждого request_id последовательность типов должна образовывать
// корректный жизненный цикл: reservation -> не более одного из {usage, release}.
type CreditTransaction struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"userId"`
	RequestID       uuid.UUID       `db:"request_id" json:"requestId"`
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`
	// Amount подписан: отрицательный для списаний/холдов, положительный для
	// возвратов, ноль для конвертации резерва и чисто аудиторских записей.
	Amount int64 `db:"amount" json:"amount"`
	// MonthlyPart/BonusPart фиксируют, как сумма операции была разложена между
	// месячным лимитом и бонусами. Нужны release/forceRefund, чтобы вернуть
	// кредиты ровно в те счетчики, из которых они были взяты.
	MonthlyPart int64           `db:"monthly_part" json:"monthlyPart"`
	BonusPart   int64           `db:"bonus_part" json:"bonusPart"`
	Feature     string          `db:"feature" json:"feature"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// AttemptStatus статус аудиторской записи о попытке генерации.
type AttemptStatus string

const (
	AttemptStarted   AttemptStatus = "started"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// GenerationAttempt — одна аудиторская запись на request_id.
// Создается при резервировании, финализируется ровно один раз на выходе
// из пайплайна (успех или терминальный сбой).
type GenerationAttempt struct {
	RequestID      uuid.UUID     `db:"request_id" json:"requestId"`
	UserID         uuid.UUID     `db:"user_id" json:"userId"`
	SceneID        uuid.UUID     `db:"scene_id" json:"sceneId"`
	Status         AttemptStatus `db:"status" json:"status"`
	CreditedAmount int64         `db:"credited_amount" json:"creditedAmount"`
	FailureStage   string        `db:"failure_stage" json:"failureStage,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	FinalizedAt    *time.Time    `db:"finalized_at" json:"finalizedAt,omitempty"`
}
