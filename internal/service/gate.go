package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/lookbox-ledger/internal/storage"
)

const (
	FreeUses         = 2
	CostPerUse int64 = 10
)

// AccessInfo - можно ли открыть мини-приложение и на каких условиях
type AccessInfo struct {
	CanUse     bool `json:"canUse"`
	UsesLeft   int  `json:"usesLeft"`
	NeedsCoins bool `json:"needsCoins"`
}

type ConsumeResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	NeedsCoins bool   `json:"needsCoins"`
	UsesLeft   int    `json:"usesLeft"`
	Balance    int64  `json:"balance"`
	Charged    int64  `json:"charged"`
}

type UsageGate interface {
	Evaluate(ctx context.Context, accountID, appID string) (AccessInfo, error)
	Consume(ctx context.Context, accountID, appID, appLabel string) (ConsumeResult, error)
}

type usageGate struct {
	log    *slog.Logger
	ledger *Ledger
}

func NewUsageGate(log *slog.Logger, ledger *Ledger) UsageGate {
	return &usageGate{log: log, ledger: ledger}
}

// Evaluate ничего не меняет: отсутствующий кошелёк считается пустым.
func (g *usageGate) Evaluate(ctx context.Context, accountID, appID string) (AccessInfo, error) {
	const op = "service.UsageGate.Evaluate"
	logger := g.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.String("app_id", appID),
	)

	if accountID == "" {
		return AccessInfo{}, ErrInvalidAccount
	}
	if appID == "" {
		return AccessInfo{}, ErrInvalidAppID
	}

	var info AccessInfo
	err := g.ledger.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		var balance int64
		acc, err := tx.ReadAccount(ctx, accountID)
		switch {
		case errors.Is(err, storage.ErrAccountNotFound):
		case err != nil:
			return err
		default:
			balance = acc.Balance
		}

		usage, err := tx.ReadUsageCounter(ctx, accountID, appID)
		if err != nil {
			return err
		}
		info = evaluate(usage.UsageCount, balance)
		return nil
	})
	if err != nil {
		logger.Error("failed to evaluate access", slog.Any("error", err))
		return AccessInfo{}, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("access evaluated", slog.Bool("can_use", info.CanUse), slog.Int("uses_left", info.UsesLeft))
	return info, nil
}

func evaluate(usageCount int, balance int64) AccessInfo {
	if usageCount < FreeUses {
		return AccessInfo{CanUse: true, UsesLeft: FreeUses - usageCount}
	}
	return AccessInfo{CanUse: balance >= CostPerUse, NeedsCoins: true}
}

// Consume проверяет доступ и фиксирует использование одной единицей работы:
// счётчик и списание либо применяются вместе, либо не применяются.
func (g *usageGate) Consume(ctx context.Context, accountID, appID, appLabel string) (ConsumeResult, error) {
	const op = "service.UsageGate.Consume"
	logger := g.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.String("app_id", appID),
	)

	if accountID == "" {
		return ConsumeResult{}, ErrInvalidAccount
	}
	if appID == "" {
		return ConsumeResult{}, ErrInvalidAppID
	}
	label := g.ledger.sanitize(appLabel)
	if label == "" {
		label = appID
	}

	var res ConsumeResult
	err := g.ledger.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := g.ledger.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		usage, err := tx.ReadUsageCounter(ctx, accountID, appID)
		if err != nil {
			return err
		}

		if usage.UsageCount < FreeUses {
			usage.UsageCount++
			usage.UpdatedAt = g.ledger.clock.Now()
			if err := tx.UpsertUsageCounter(ctx, usage); err != nil {
				return err
			}
			left := FreeUses - usage.UsageCount
			res = ConsumeResult{
				Success:  true,
				Message:  freeUseMessage(label, left),
				UsesLeft: left,
				Balance:  acc.Balance,
			}
			return nil
		}

		ok, err := g.ledger.applyDebit(ctx, tx, acc, CostPerUse, "usage of "+appID, &appID)
		if err != nil {
			return err
		}
		if !ok {
			res = ConsumeResult{
				Success:    false,
				Message:    fmt.Sprintf("you need %d coins to open %s, current balance: %d coins", CostPerUse, label, acc.Balance),
				NeedsCoins: true,
				Balance:    acc.Balance,
			}
			return nil
		}

		usage.UsageCount++
		usage.UpdatedAt = g.ledger.clock.Now()
		if err := tx.UpsertUsageCounter(ctx, usage); err != nil {
			return err
		}
		res = ConsumeResult{
			Success:    true,
			Message:    fmt.Sprintf("%d coins spent on %s, balance: %d coins", CostPerUse, label, acc.Balance),
			NeedsCoins: true,
			Balance:    acc.Balance,
			Charged:    CostPerUse,
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to consume usage", slog.Any("error", err))
		return ConsumeResult{}, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("usage processed",
		slog.Bool("success", res.Success),
		slog.Int64("charged", res.Charged),
		slog.Int64("balance", res.Balance),
	)
	return res, nil
}

func freeUseMessage(label string, left int) string {
	switch left {
	case 0:
		return fmt.Sprintf("last free use of %s, next uses cost %d coins", label, CostPerUse)
	case 1:
		return fmt.Sprintf("free use of %s, 1 free use left", label)
	default:
		return fmt.Sprintf("free use of %s, %d free uses left", label, left)
	}
}
