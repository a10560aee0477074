package credits

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"illustrator-server/internal/models"
)

// accountDelta — изменение счетчиков аккаунта, которое нужно применить атомарно
// вместе со вставкой новых строк журнала.
type accountDelta struct {
	MonthlyUsed     int64
	BonusUsed       int64
	ReservedMonthly int64
	ReservedBonus   int64
}

func (d accountDelta) isZero() bool {
	return d.MonthlyUsed == 0 && d.BonusUsed == 0 && d.ReservedMonthly == 0 && d.ReservedBonus == 0
}

// opPlan — результат чистой функции планирования: что записать и как изменить
// аккаунт. Применение плана — забота конкретного хранилища (pg или память).
type opPlan struct {
	Delta accountDelta
	// NewTransactions — строки журнала для вставки (может быть пусто при
	// идемпотентном повторе).
	NewTransactions []models.CreditTransaction
}

// history — транзакции одного request_id, разобранные по типам.
type history struct {
	Reservation *models.CreditTransaction
	Usage       *models.CreditTransaction
	Release     *models.CreditTransaction
	Refund      *models.CreditTransaction
}

func parseHistory(txs []models.CreditTransaction) history {
	var h history
	for i := range txs {
		tx := &txs[i]
		switch tx.TransactionType {
		case models.TransactionReservation:
			h.Reservation = tx
		case models.TransactionUsage:
			h.Usage = tx
		case models.TransactionRelease:
			h.Release = tx
		case models.TransactionRefund:
			h.Refund = tx
		}
	}
	return h
}

// terminated — по request_id уже есть терминальная запись.
func (h history) terminated() bool {
	return h.Usage != nil || h.Release != nil || h.Refund != nil
}

func newTransaction(userID, requestID uuid.UUID, txType models.TransactionType, amount, monthly, bonus int64, feature string, metadata map[string]any) models.CreditTransaction {
	var meta json.RawMessage
	if len(metadata) > 0 {
		meta, _ = json.Marshal(metadata)
	}
	return models.CreditTransaction{
		ID:              uuid.New(),
		UserID:          userID,
		RequestID:       requestID,
		TransactionType: txType,
		Amount:          amount,
		MonthlyPart:     monthly,
		BonusPart:       bonus,
		Feature:         feature,
		Metadata:        meta,
		CreatedAt:       time.Now(),
	}
}

// splitCharge раскладывает сумму между месячным лимитом и бонусами:
// сначала остаток месячного лимита, затем бонусы.
func splitCharge(monthlyAvailable, bonusAvailable, amount int64) (monthly, bonus int64, ok bool) {
	if monthlyAvailable < 0 {
		monthlyAvailable = 0
	}
	if bonusAvailable < 0 {
		bonusAvailable = 0
	}
	if monthlyAvailable+bonusAvailable < amount {
		return 0, 0, false
	}
	monthly = amount
	if monthly > monthlyAvailable {
		monthly = monthlyAvailable
	}
	return monthly, amount - monthly, true
}

// planReserve решает, как зарезервировать amount кредитов.
// Повторный вызов для того же request_id возвращает существующий резерв без
// новых записей.
func planReserve(acc *models.CreditAccount, txs []models.CreditTransaction, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*opPlan, *ReserveResult, error) {
	h := parseHistory(txs)
	if h.Reservation != nil {
		return &opPlan{}, &ReserveResult{
			MonthlyPart:     h.Reservation.MonthlyPart,
			BonusPart:       h.Reservation.BonusPart,
			Available:       acc.Available(),
			AlreadyReserved: true,
		}, nil
	}
	if h.terminated() {
		// Запрос уже завершен; новый резерв под тем же id нарушил бы цикл.
		return nil, nil, models.ErrDuplicateTransaction
	}

	monthlyAvail := acc.MonthlyAllowance - acc.MonthlyUsed - acc.ReservedMonthly
	bonusAvail := acc.BonusTotal - acc.BonusUsed - acc.ReservedBonus
	monthly, bonus, ok := splitCharge(monthlyAvail, bonusAvail, amount)
	if !ok {
		return nil, nil, models.ErrInsufficientCredits
	}

	plan := &opPlan{
		Delta: accountDelta{ReservedMonthly: monthly, ReservedBonus: bonus},
		NewTransactions: []models.CreditTransaction{
			newTransaction(userID, requestID, models.TransactionReservation, -amount, monthly, bonus, feature, metadata),
		},
	}
	return plan, &ReserveResult{
		MonthlyPart: monthly,
		BonusPart:   bonus,
		Available:   acc.Available() - amount,
	}, nil
}

// planCommit конвертирует существующий резерв в постоянное списание.
// Сумма операции в журнале равна нулю: доступный остаток уже уменьшен резервом.
func planCommit(acc *models.CreditAccount, txs []models.CreditTransaction, userID, requestID uuid.UUID, metadata map[string]any) (*opPlan, *CommitResult, error) {
	h := parseHistory(txs)
	if h.Usage != nil {
		return &opPlan{}, &CommitResult{
			Amount:           h.Usage.MonthlyPart + h.Usage.BonusPart,
			Available:        acc.Available(),
			AlreadyCommitted: true,
		}, nil
	}
	if h.Release != nil || h.Refund != nil {
		// Резерв уже возвращен; подтверждать нечего.
		return nil, nil, models.ErrReservationNotFound
	}
	if h.Reservation == nil {
		return nil, nil, models.ErrReservationNotFound
	}

	monthly, bonus := h.Reservation.MonthlyPart, h.Reservation.BonusPart
	plan := &opPlan{
		Delta: accountDelta{
			MonthlyUsed:     monthly,
			BonusUsed:       bonus,
			ReservedMonthly: -monthly,
			ReservedBonus:   -bonus,
		},
		NewTransactions: []models.CreditTransaction{
			newTransaction(userID, requestID, models.TransactionUsage, 0, monthly, bonus, h.Reservation.Feature, metadata),
		},
	}
	return plan, &CommitResult{Amount: monthly + bonus, Available: acc.Available()}, nil
}

// planConsume — прямое списание без резерва (fallback-путь).
func planConsume(acc *models.CreditAccount, txs []models.CreditTransaction, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*opPlan, *CommitResult, error) {
	h := parseHistory(txs)
	if h.Usage != nil {
		return &opPlan{}, &CommitResult{
			Amount:           h.Usage.MonthlyPart + h.Usage.BonusPart,
			Available:        acc.Available(),
			AlreadyCommitted: true,
		}, nil
	}
	if h.Release != nil || h.Refund != nil {
		return nil, nil, models.ErrDuplicateTransaction
	}

	monthlyAvail := acc.MonthlyAllowance - acc.MonthlyUsed - acc.ReservedMonthly
	bonusAvail := acc.BonusTotal - acc.BonusUsed - acc.ReservedBonus
	monthly, bonus, ok := splitCharge(monthlyAvail, bonusAvail, amount)
	if !ok {
		return nil, nil, models.ErrInsufficientCredits
	}

	plan := &opPlan{
		Delta: accountDelta{MonthlyUsed: monthly, BonusUsed: bonus},
		NewTransactions: []models.CreditTransaction{
			newTransaction(userID, requestID, models.TransactionUsage, -amount, monthly, bonus, feature, metadata),
		},
	}
	return plan, &CommitResult{Amount: amount, Available: acc.Available() - amount}, nil
}

// planRelease снимает резерв. Если резерва не было, пишет запись с нулевой
// суммой: аудиторская история остается полной даже на безрезервном пути.
func planRelease(txs []models.CreditTransaction, userID, requestID uuid.UUID, reason string, metadata map[string]any) *opPlan {
	h := parseHistory(txs)
	if h.Release != nil || h.Refund != nil {
		// Уже возвращено — идемпотентный no-op.
		return &opPlan{}
	}
	meta := withReason(metadata, reason)
	if h.Reservation == nil || h.Usage != nil {
		// Нечего снимать: либо резерва не было, либо он уже сконвертирован.
		// Committed-путь восстанавливает ForceRefund, а не Release.
		return &opPlan{
			NewTransactions: []models.CreditTransaction{
				newTransaction(userID, requestID, models.TransactionRelease, 0, 0, 0, FeatureIllustration, meta),
			},
		}
	}

	monthly, bonus := h.Reservation.MonthlyPart, h.Reservation.BonusPart
	return &opPlan{
		Delta: accountDelta{ReservedMonthly: -monthly, ReservedBonus: -bonus},
		NewTransactions: []models.CreditTransaction{
			newTransaction(userID, requestID, models.TransactionRelease, monthly+bonus, monthly, bonus, h.Reservation.Feature, meta),
		},
	}
}

// planForceRefund — безусловное восстановление по истории request_id.
// Делает аккаунт целым ровно один раз независимо от того, на какой стадии
// упал пайплайн:
//   - списание уже подтверждено -> вернуть списанное;
//   - есть только резерв -> снять резерв;
//   - ничего не было -> нулевая аудиторская запись.
func planForceRefund(txs []models.CreditTransaction, userID, requestID uuid.UUID, reason string, metadata map[string]any) *opPlan {
	h := parseHistory(txs)
	if h.Refund != nil {
		return &opPlan{} // уже восстановлено
	}
	meta := withReason(metadata, reason)

	if h.Usage != nil {
		monthly, bonus := h.Usage.MonthlyPart, h.Usage.BonusPart
		return &opPlan{
			Delta: accountDelta{MonthlyUsed: -monthly, BonusUsed: -bonus},
			NewTransactions: []models.CreditTransaction{
				newTransaction(userID, requestID, models.TransactionRefund, monthly+bonus, monthly, bonus, h.Usage.Feature, meta),
			},
		}
	}
	if h.Reservation != nil && h.Release == nil {
		monthly, bonus := h.Reservation.MonthlyPart, h.Reservation.BonusPart
		return &opPlan{
			Delta: accountDelta{ReservedMonthly: -monthly, ReservedBonus: -bonus},
			NewTransactions: []models.CreditTransaction{
				newTransaction(userID, requestID, models.TransactionRefund, monthly+bonus, monthly, bonus, h.Reservation.Feature, meta),
			},
		}
	}
	// Ни резерва, ни списания (или резерв уже снят) — только аудиторский след.
	return &opPlan{
		NewTransactions: []models.CreditTransaction{
			newTransaction(userID, requestID, models.TransactionRefund, 0, 0, 0, FeatureIllustration, meta),
		},
	}
}

func withReason(metadata map[string]any, reason string) map[string]any {
	if reason == "" {
		return metadata
	}
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["reason"] = reason
	return meta
}

// applyDelta применяет изменение счетчиков к аккаунту (для реализаций хранилища).
func applyDelta(acc *models.CreditAccount, d accountDelta) {
	acc.MonthlyUsed += d.MonthlyUsed
	acc.BonusUsed += d.BonusUsed
	acc.ReservedMonthly += d.ReservedMonthly
	acc.ReservedBonus += d.ReservedBonus
}
