package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/lookbox-ledger/internal/storage"
)

// коды ошибок postgres, после которых операцию можно повторить
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// LedgerRepository - реализация storage.LedgerStorage поверх PostgreSQL.
// Операции над одним аккаунтом сериализуются транзакционной advisory-блокировкой.
type LedgerRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ storage.LedgerStorage = (*LedgerRepository)(nil)

// NewLedgerRepository создаёт репозиторий. lockTimeout ограничивает ожидание блокировки аккаунта,
// ноль - ждать без ограничения (в пределах контекста).
func NewLedgerRepository(db *sql.DB, lockTimeout time.Duration) *LedgerRepository {
	return &LedgerRepository{db: db, lockTimeout: lockTimeout}
}

// InTx открывает транзакцию, блокирует аккаунт и выполняет fn.
// Если что-то идет не так, транзакция откатывается
func (r *LedgerRepository) InTx(ctx context.Context, accountID string, fn func(tx storage.LedgerTx) error) error {
	const op = "storage.postgres.InTx"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, mapError(err))
	}
	// откат при любом выходе без коммита, в том числе при панике в fn
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
	}()

	if err := r.lockAccount(ctx, tx, accountID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, mapError(err))
	}
	return nil
}

// lockAccount берёт advisory-блокировку на id аккаунта до конца транзакции.
// В отличие от FOR UPDATE она работает и для ещё не созданной строки.
func (r *LedgerRepository) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) error {
	if r.lockTimeout > 0 {
		// SET не принимает плейсхолдеры, значение - целое число миллисекунд
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", mapError(err))
		}
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", accountID); err != nil {
		return fmt.Errorf("failed to lock account: %w", mapError(err))
	}
	return nil
}

// mapError превращает конфликты блокировок в storage.ErrLocked
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", storage.ErrLocked, pqErr.Message)
		}
	}
	return err
}

// ledgerTx - примитивы storage.LedgerTx в рамках одной sql-транзакции
type ledgerTx struct {
	tx *sql.Tx
}

var _ storage.LedgerTx = (*ledgerTx)(nil)
