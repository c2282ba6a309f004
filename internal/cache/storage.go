package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/storage"
)

// CachedStorage - storage.LedgerStorage с кэшем истории поверх.
// Ошибки кэша только логируются: источником истины остаётся хранилище.
type CachedStorage struct {
	log   *slog.Logger
	next  storage.LedgerStorage
	cache HistoryCache
}

var _ storage.LedgerStorage = (*CachedStorage)(nil)

func NewCachedStorage(log *slog.Logger, next storage.LedgerStorage, cache HistoryCache) *CachedStorage {
	return &CachedStorage{log: log, next: next, cache: cache}
}

func (s *CachedStorage) InTx(ctx context.Context, accountID string, fn func(tx storage.LedgerTx) error) error {
	const op = "cache.CachedStorage.InTx"

	var appended bool
	err := s.next.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		return fn(&trackingTx{LedgerTx: tx, appended: &appended})
	})
	if err != nil || !appended {
		return err
	}

	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		s.log.With(slog.String("op", op)).Warn("failed to invalidate history cache",
			slog.String("account_id", accountID), slog.Any("error", err))
	}
	return nil
}

func (s *CachedStorage) ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	const op = "cache.CachedStorage.ListTransactions"
	log := s.log.With(slog.String("op", op), slog.String("account_id", accountID))

	txs, err := s.cache.Get(ctx, accountID, limit)
	if err == nil {
		return txs, nil
	}
	if !errors.Is(err, ErrMiss) {
		log.Warn("history cache read failed", slog.Any("error", err))
	}

	txs, err = s.next.ListTransactions(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, accountID, limit, txs); err != nil {
		log.Warn("history cache write failed", slog.Any("error", err))
	}
	return txs, nil
}

// trackingTx отмечает, что единица работы дописала журнал
type trackingTx struct {
	storage.LedgerTx
	appended *bool
}

func (t *trackingTx) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := t.LedgerTx.AppendTransaction(ctx, tx); err != nil {
		return err
	}
	*t.appended = true
	return nil
}
