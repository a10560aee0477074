package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
)

// pgUniqueViolation — код ошибки PostgreSQL для нарушения уникального индекса.
const pgUniqueViolation = "23505"

var _ Ledger = (*PgLedger)(nil)

const (
	// FOR UPDATE сериализует конкурентные операции по одному аккаунту:
	// два параллельных запроса не могут оба пройти проверку баланса.
	getAccountForUpdateQuery = `
SELECT user_id, monthly_allowance, monthly_used, bonus_total, bonus_used,
       reserved_monthly, reserved_bonus, updated_at
FROM credit_accounts
WHERE user_id = $1
FOR UPDATE`

	getAccountQuery = `
SELECT user_id, monthly_allowance, monthly_used, bonus_total, bonus_used,
       reserved_monthly, reserved_bonus, updated_at
FROM credit_accounts
WHERE user_id = $1`

	getRequestTransactionsQuery = `
SELECT id, user_id, request_id, transaction_type, amount, monthly_part, bonus_part,
       feature, metadata, created_at
FROM credit_transactions
WHERE user_id = $1 AND request_id = $2
ORDER BY created_at ASC`

	// Предикаты дублируют инварианты аккаунта: used <= allowance,
	// reserved <= allowance - used, счетчики неотрицательны. Нарушение
	// означает гонку или поврежденную историю — обновление не применяется.
	applyAccountDeltaQuery = `
UPDATE credit_accounts
SET monthly_used     = monthly_used + $2,
    bonus_used       = bonus_used + $3,
    reserved_monthly = reserved_monthly + $4,
    reserved_bonus   = reserved_bonus + $5,
    updated_at       = NOW()
WHERE user_id = $1
  AND monthly_used + $2 >= 0
  AND monthly_used + $2 <= monthly_allowance
  AND bonus_used + $3 >= 0
  AND bonus_used + $3 <= bonus_total
  AND reserved_monthly + $4 >= 0
  AND reserved_bonus + $5 >= 0
  AND reserved_monthly + $4 <= monthly_allowance - (monthly_used + $2)`

	insertTransactionQuery = `
INSERT INTO credit_transactions (id, user_id, request_id, transaction_type, amount,
                                 monthly_part, bonus_part, feature, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

// PgLedger — реализация Ledger поверх PostgreSQL.
type PgLedger struct {
	pool   txBeginner
	logger *zap.Logger
}

// txBeginner покрывает pgxpool.Pool: все операции журнала транзакционны.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPgLedger создает журнал кредитов поверх PostgreSQL.
func NewPgLedger(pool txBeginner, logger *zap.Logger) *PgLedger {
	return &PgLedger{
		pool:   pool,
		logger: logger.Named("CreditLedger"),
	}
}

// Reserve удерживает amount кредитов под request_id.
func (l *PgLedger) Reserve(ctx context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*ReserveResult, error) {
	var result *ReserveResult
	err := l.inTx(ctx, userID, requestID, func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error) {
		plan, res, err := planReserve(acc, txs, userID, requestID, amount, feature, metadata)
		if err != nil {
			return nil, err
		}
		result = res
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("Credits reserved",
		zap.String("userID", userID.String()),
		zap.String("requestID", requestID.String()),
		zap.Int64("amount", amount),
		zap.Bool("alreadyReserved", result.AlreadyReserved),
	)
	return result, nil
}

// Commit конвертирует резерв в постоянное списание. Идемпотентен.
func (l *PgLedger) Commit(ctx context.Context, userID, requestID uuid.UUID, metadata map[string]any) (*CommitResult, error) {
	var result *CommitResult
	err := l.inTx(ctx, userID, requestID, func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error) {
		plan, res, err := planCommit(acc, txs, userID, requestID, metadata)
		if err != nil {
			return nil, err
		}
		result = res
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("Reservation committed",
		zap.String("userID", userID.String()),
		zap.String("requestID", requestID.String()),
		zap.Bool("alreadyCommitted", result.AlreadyCommitted),
	)
	return result, nil
}

// Consume — прямое списание без резерва (fallback-путь).
func (l *PgLedger) Consume(ctx context.Context, userID, requestID uuid.UUID, amount int64, feature string, metadata map[string]any) (*CommitResult, error) {
	var result *CommitResult
	err := l.inTx(ctx, userID, requestID, func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error) {
		plan, res, err := planConsume(acc, txs, userID, requestID, amount, feature, metadata)
		if err != nil {
			return nil, err
		}
		result = res
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Warn("Credits consumed without reservation",
		zap.String("userID", userID.String()),
		zap.String("requestID", requestID.String()),
		zap.Int64("amount", amount),
	)
	return result, nil
}

// Release снимает резерв (или пишет нулевую аудиторскую запись).
func (l *PgLedger) Release(ctx context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error {
	err := l.inTx(ctx, userID, requestID, func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error) {
		return planRelease(txs, userID, requestID, reason, metadata), nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("Reservation released",
		zap.String("userID", userID.String()),
		zap.String("requestID", requestID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// ForceRefund — безусловный идемпотентный путь восстановления.
func (l *PgLedger) ForceRefund(ctx context.Context, userID, requestID uuid.UUID, reason string, metadata map[string]any) error {
	err := l.inTx(ctx, userID, requestID, func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error) {
		return planForceRefund(txs, userID, requestID, reason, metadata), nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("Force refund applied",
		zap.String("userID", userID.String()),
		zap.String("requestID", requestID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// Available возвращает доступный остаток пользователя.
func (l *PgLedger) Available(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var acc models.CreditAccount
	if err := pgxscan.Get(ctx, tx, &acc, getAccountQuery, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrAccountNotFound
		}
		return 0, fmt.Errorf("ошибка чтения аккаунта %s: %w", userID, err)
	}
	return acc.Available(), nil
}

// inTx выполняет операцию журнала в транзакции: блокирует аккаунт, читает
// историю request_id, планирует изменения и применяет их атомарно.
func (l *PgLedger) inTx(ctx context.Context, userID, requestID uuid.UUID, fn func(acc *models.CreditAccount, txs []models.CreditTransaction) (*opPlan, error)) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var acc models.CreditAccount
	if err := pgxscan.Get(ctx, tx, &acc, getAccountForUpdateQuery, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка блокировки аккаунта %s: %w", userID, err)
	}

	var history []models.CreditTransaction
	if err := pgxscan.Select(ctx, tx, &history, getRequestTransactionsQuery, userID, requestID); err != nil {
		return fmt.Errorf("ошибка чтения истории запроса %s: %w", requestID, err)
	}

	plan, err := fn(&acc, history)
	if err != nil {
		return err
	}

	if !plan.Delta.isZero() {
		tag, err := tx.Exec(ctx, applyAccountDeltaQuery, userID,
			plan.Delta.MonthlyUsed, plan.Delta.BonusUsed,
			plan.Delta.ReservedMonthly, plan.Delta.ReservedBonus,
		)
		if err != nil {
			return fmt.Errorf("ошибка обновления аккаунта %s: %w", userID, err)
		}
		if tag.RowsAffected() == 0 {
			// Предикаты инвариантов не прошли — считаем конфликтом.
			return models.ErrReservationConflict
		}
	}

	for _, t := range plan.NewTransactions {
		_, err := tx.Exec(ctx, insertTransactionQuery,
			t.ID, t.UserID, t.RequestID, string(t.TransactionType), t.Amount,
			t.MonthlyPart, t.BonusPart, t.Feature, t.Metadata, t.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return models.ErrDuplicateTransaction
			}
			return fmt.Errorf("ошибка записи транзакции %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции журнала: %w", err)
	}
	return nil
}
