package storage

import (
	"context"
	"errors"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrLocked - конфликт блокировок, операцию можно безопасно повторить
	ErrLocked = errors.New("account ledger is locked, please try again")
)

// LedgerTx описывает примитивы, доступные внутри одной атомарной единицы работы над аккаунтом.
// Все изменения, сделанные через LedgerTx, применяются целиком или не применяются вовсе.
type LedgerTx interface {
	// ReadAccount возвращает ErrAccountNotFound, если аккаунт ещё не создан.
	ReadAccount(ctx context.Context, accountID string) (*models.Account, error)
	UpsertAccount(ctx context.Context, account *models.Account) error
	// ReadUsageCounter возвращает счётчик с нулём, если приложение ещё не открывалось.
	ReadUsageCounter(ctx context.Context, accountID, appID string) (*models.AppUsage, error)
	UpsertUsageCounter(ctx context.Context, usage *models.AppUsage) error
	// AppendTransaction добавляет запись в журнал и проставляет ей Seq.
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	// SumTransactions возвращает сумму и количество записей журнала аккаунта.
	SumTransactions(ctx context.Context, accountID string) (int64, int, error)
}

// LedgerStorage - хранилище кошельков. Операции над одним аккаунтом сериализуются.
type LedgerStorage interface {
	// InTx выполняет fn эксклюзивно для accountID. Ошибка из fn откатывает все изменения.
	InTx(ctx context.Context, accountID string, fn func(tx LedgerTx) error) error
	// ListTransactions возвращает журнал от новых записей к старым, не больше limit.
	ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
}
