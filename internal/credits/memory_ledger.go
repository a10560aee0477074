package credits

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"illustrator-server/internal/models"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger — потокобезопасная реализация Ledger в памяти.
// Использует те же функции планирования, что и PgLedger, поэтому пригодна
// для проверки инвариантов журнала в тестах без базы данных.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.CreditAccount
	journal  []models.CreditTransaction
}

// NewMemoryLedger создает пустой журнал в памяти.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[uuid.UUID]*models.CreditAccount)}
}

// SeedAccount создает аккаунт с заданными лимитами.
func (l *MemoryLedger) SeedAccount(userID uuid.UUID, monthlyAllowance, bonusTotal int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[userID] = &models.CreditAccount{
		UserID:           userID,
		MonthlyAllowance: monthlyAllowance,
		BonusTotal:       bonusTotal,
	}
}

// Account возвращает копию аккаунта (для проверок в тестах).
func (l *MemoryLedger) Account(userID uuid.UUID) (models.CreditAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[userID]
	if !ok {
		return models.CreditAccount{}, false
	}
	return *acc, true
}

// Transactions возвращает копию журнала для request_id.
func (l *MemoryLedger) Transactions(userID, requestID uuid.UUID) []models.CreditTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.historyLocked(userID, requestID)
}

func (l *MemoryLedger) historyLocked(userID, requestID uuid.UUID) []models.CreditTransaction {
	var txs []models.CreditTransaction
	for _, t := range l.journal {
		if t.UserID == userID && t.RequestID == requestID {
			txs = append(txs, t)
		}
	}
	return txs
}

func (l *MemoryLedger) applyLocked(acc *models.CreditAccount, plan *opPlan) {
	applyDelta(acc, plan.Delta)
	l.journal = append(l.journal, plan.NewTransactions...)
}

func (l *MemoryLedger) account(userID uuid.UUID) (*models.CreditAccount, error) {
	acc, ok := l.accounts[userID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return acc, nil
}

// Reserve удерживает amount кредитов под request_id.
func (l *MemoryLedger) Reserve(_ context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*ReserveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return nil, err
	}
	plan, res, err := planReserve(acc, l.historyLocked(userID, requestID), userID, requestID, amount, feature, metadata)
	if err != nil {
		return nil, err
	}
	l.applyLocked(acc, plan)
	return res, nil
}

// Commit конвертирует резерв в постоянное списание.
func (l *MemoryLedger) Commit(_ context.Context, userID, requestID uuid.UUID, metadata map[string]any) (*CommitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return nil, err
	}
	plan, res, err := planCommit(acc, l.historyLocked(userID, requestID), userID, requestID, metadata)
	if err != nil {
		return nil, err
	}
	l.applyLocked(acc, plan)
	return res, nil
}

// Consume — прямое списание без резерва.
func (l *MemoryLedger) Consume(_ context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*CommitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return nil, err
	}
	plan, res, err := planConsume(acc, l.historyLocked(userID, requestID), userID, requestID, amount, feature, metadata)
	if err != nil {
		return nil, err
	}
	l.applyLocked(acc, plan)
	return res, nil
}

// Release снимает резерв.
func (l *MemoryLedger) Release(_ context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return err
	}
	plan := planRelease(l.historyLocked(userID, requestID), userID, requestID, reason, metadata)
	l.applyLocked(acc, plan)
	return nil
}

// ForceRefund — безусловное идемпотентное восстановление.
func (l *MemoryLedger) ForceRefund(_ context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return err
	}
	plan := planForceRefund(l.historyLocked(userID, requestID), userID, requestID, reason, metadata)
	l.applyLocked(acc, plan)
	return nil
}

// Available возвращает доступный остаток пользователя.
func (l *MemoryLedger) Available(_ context.Context, userID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.account(userID)
	if err != nil {
		return 0, err
	}
	return acc.Available(), nil
}
