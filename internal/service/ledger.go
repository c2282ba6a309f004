package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/lib/clock"
	"github.com/linemk/lookbox-ledger/internal/storage"
	"github.com/microcosm-cc/bluemonday"
)

const (
	DailyRewardCoins    int64 = 2
	DefaultHistoryLimit       = 20
	MaxHistoryLimit           = 100
)

type BalanceInfo struct {
	Balance             int64   `json:"balance"`
	LastDailyRewardDate *string `json:"lastDailyRewardDate"`
	CanClaimDaily       bool    `json:"canClaimDaily"`
}

type DailyRewardResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Coins   int64  `json:"coins"`
	Balance int64  `json:"balance"`
}

type PurchaseResult struct {
	Message      string `json:"message"`
	Balance      int64  `json:"balance"`
	CoinsGranted int64  `json:"coinsGranted"`
	Bonus        int64  `json:"bonus"`
}

// AuditReport - сверка баланса с суммой журнала
type AuditReport struct {
	AccountID        string `json:"accountId"`
	Balance          int64  `json:"balance"`
	LedgerSum        int64  `json:"ledgerSum"`
	TransactionCount int    `json:"transactionCount"`
	Consistent       bool   `json:"consistent"`
}

type LedgerService interface {
	GetBalance(ctx context.Context, accountID string) (BalanceInfo, error)
	Credit(ctx context.Context, accountID string, amount int64, kind models.TransactionKind, description string) error
	Debit(ctx context.Context, accountID string, amount int64, description string, appID *string) (bool, error)
	ClaimDailyReward(ctx context.Context, accountID string) (DailyRewardResult, error)
	Purchase(ctx context.Context, accountID, planID string, coinsGranted int64, priceDisplay string) error
	PurchasePlan(ctx context.Context, accountID string, plan models.CoinPlan) (PurchaseResult, error)
	GetTransactionHistory(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
	Audit(ctx context.Context, accountID string) (AuditReport, error)
}

// Ledger - движок кошелька. Каждая операция выполняется одной единицей работы хранилища,
// поэтому баланс и журнал меняются только вместе.
type Ledger struct {
	log    *slog.Logger
	store  storage.LedgerStorage
	clock  clock.Clock
	loc    *time.Location
	policy *bluemonday.Policy
}

var _ LedgerService = (*Ledger)(nil)

// NewLedgerService создаёт движок. defaultLoc используется для расчёта дня,
// если в контексте нет часового пояса пользователя.
func NewLedgerService(log *slog.Logger, store storage.LedgerStorage, clk clock.Clock, defaultLoc *time.Location) *Ledger {
	if clk == nil {
		clk = clock.System()
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Ledger{
		log:    log,
		store:  store,
		clock:  clk,
		loc:    defaultLoc,
		policy: bluemonday.StrictPolicy(),
	}
}

// GetBalance возвращает баланс. Первое обращение создаёт пустой кошелёк.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (BalanceInfo, error) {
	const op = "service.Ledger.GetBalance"
	logger := l.log.With(slog.String("op", op), slog.String("account_id", accountID))

	if accountID == "" {
		return BalanceInfo{}, ErrInvalidAccount
	}

	var info BalanceInfo
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		info = BalanceInfo{
			Balance:             acc.Balance,
			LastDailyRewardDate: acc.LastDailyRewardDate,
			CanClaimDaily:       acc.LastDailyRewardDate == nil || *acc.LastDailyRewardDate != l.today(ctx),
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to get balance", slog.Any("error", err))
		return BalanceInfo{}, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("balance loaded", slog.Int64("balance", info.Balance))
	return info, nil
}

// Credit зачисляет монеты. Списание через Credit невозможно: для него есть Debit.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount int64, kind models.TransactionKind, description string) error {
	const op = "service.Ledger.Credit"
	logger := l.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("kind", string(kind)),
	)

	if accountID == "" {
		return ErrInvalidAccount
	}
	if amount <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}
	if kind == models.KindUsage || !kind.Valid() {
		return fmt.Errorf("%s: %w: %q", op, ErrInvalidKind, kind)
	}
	description = l.sanitize(description)

	var balance int64
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := l.applyCredit(ctx, tx, acc, amount, kind, description); err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		logger.Error("failed to credit coins", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("coins credited", slog.Int64("balance", balance))
	return nil
}

// Debit списывает монеты. Нехватка средств - не ошибка: возвращается false без изменений.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64, description string, appID *string) (bool, error) {
	const op = "service.Ledger.Debit"
	logger := l.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
	)

	if accountID == "" {
		return false, ErrInvalidAccount
	}
	if amount <= 0 {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}
	description = l.sanitize(description)

	var ok bool
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		ok, err = l.applyDebit(ctx, tx, acc, amount, description, appID)
		return err
	})
	if err != nil {
		logger.Error("failed to debit coins", slog.Any("error", err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		logger.Info("insufficient balance")
		return false, nil
	}
	logger.Info("coins debited")
	return true, nil
}

// ClaimDailyReward начисляет ежедневную награду не чаще раза в календарный день пользователя.
func (l *Ledger) ClaimDailyReward(ctx context.Context, accountID string) (DailyRewardResult, error) {
	const op = "service.Ledger.ClaimDailyReward"
	logger := l.log.With(slog.String("op", op), slog.String("account_id", accountID))

	if accountID == "" {
		return DailyRewardResult{}, ErrInvalidAccount
	}

	today := l.today(ctx)
	var res DailyRewardResult
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.LastDailyRewardDate != nil && *acc.LastDailyRewardDate == today {
			res = DailyRewardResult{
				Success: false,
				Message: "you already claimed your daily reward today",
				Balance: acc.Balance,
			}
			return nil
		}

		// отметка дня и начисление сохраняются одной записью аккаунта
		acc.LastDailyRewardDate = &today
		if err := l.applyCredit(ctx, tx, acc, DailyRewardCoins, models.KindDailyReward, "daily cashback"); err != nil {
			return err
		}
		res = DailyRewardResult{
			Success: true,
			Message: fmt.Sprintf("you earned %d coins, come back tomorrow for more", DailyRewardCoins),
			Coins:   DailyRewardCoins,
			Balance: acc.Balance,
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to claim daily reward", slog.Any("error", err))
		return DailyRewardResult{}, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("daily reward processed", slog.Bool("success", res.Success), slog.String("day", today))
	return res, nil
}

// Purchase зачисляет купленные монеты. Оплата не проверяется.
func (l *Ledger) Purchase(ctx context.Context, accountID, planID string, coinsGranted int64, priceDisplay string) error {
	const op = "service.Ledger.Purchase"
	logger := l.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.String("plan_id", planID),
	)

	if err := l.Credit(ctx, accountID, coinsGranted, models.KindPurchase, purchaseDescription(coinsGranted, priceDisplay)); err != nil {
		logger.Error("purchase failed", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("purchase completed", slog.Int64("coins", coinsGranted))
	return nil
}

// PurchasePlan зачисляет монеты пакета и бонус отдельной записью в одной единице работы.
func (l *Ledger) PurchasePlan(ctx context.Context, accountID string, plan models.CoinPlan) (PurchaseResult, error) {
	const op = "service.Ledger.PurchasePlan"
	logger := l.log.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.String("plan_id", plan.ID),
	)

	if accountID == "" {
		return PurchaseResult{}, ErrInvalidAccount
	}
	if plan.Coins <= 0 || plan.Bonus < 0 {
		return PurchaseResult{}, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}

	var balance int64
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		desc := purchaseDescription(plan.Coins, plan.PriceDisplay())
		if err := l.applyCredit(ctx, tx, acc, plan.Coins, models.KindPurchase, desc); err != nil {
			return err
		}
		if plan.Bonus > 0 {
			desc := fmt.Sprintf("bonus of %d coins for plan %s", plan.Bonus, plan.ID)
			if err := l.applyCredit(ctx, tx, acc, plan.Bonus, models.KindBonus, desc); err != nil {
				return err
			}
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		logger.Error("plan purchase failed", slog.Any("error", err))
		return PurchaseResult{}, fmt.Errorf("%s: %w", op, err)
	}

	msg := fmt.Sprintf("purchased %d coins", plan.Coins)
	if plan.Bonus > 0 {
		msg += fmt.Sprintf(" + %d bonus", plan.Bonus)
	}
	logger.Info("plan purchased", slog.Int64("balance", balance))
	return PurchaseResult{
		Message:      msg,
		Balance:      balance,
		CoinsGranted: plan.Coins,
		Bonus:        plan.Bonus,
	}, nil
}

// GetTransactionHistory возвращает журнал от новых записей к старым. Кошелёк не создаёт.
func (l *Ledger) GetTransactionHistory(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	const op = "service.Ledger.GetTransactionHistory"
	logger := l.log.With(slog.String("op", op), slog.String("account_id", accountID))

	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	limit = clampLimit(limit)

	txs, err := l.store.ListTransactions(ctx, accountID, limit)
	if err != nil {
		logger.Error("failed to list transactions", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}

	logger.Debug("transactions listed", slog.Int("count", len(txs)))
	return txs, nil
}

// Audit пересчитывает сумму журнала и сравнивает её с балансом.
func (l *Ledger) Audit(ctx context.Context, accountID string) (AuditReport, error) {
	const op = "service.Ledger.Audit"
	logger := l.log.With(slog.String("op", op), slog.String("account_id", accountID))

	if accountID == "" {
		return AuditReport{}, ErrInvalidAccount
	}

	report := AuditReport{AccountID: accountID}
	err := l.store.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		acc, err := tx.ReadAccount(ctx, accountID)
		switch {
		case errors.Is(err, storage.ErrAccountNotFound):
		case err != nil:
			return err
		default:
			report.Balance = acc.Balance
		}

		sum, count, err := tx.SumTransactions(ctx, accountID)
		if err != nil {
			return err
		}
		report.LedgerSum = sum
		report.TransactionCount = count
		return nil
	})
	if err != nil {
		logger.Error("audit failed", slog.Any("error", err))
		return AuditReport{}, fmt.Errorf("%s: %w", op, err)
	}

	report.Consistent = report.Balance == report.LedgerSum && report.Balance >= 0
	if !report.Consistent {
		logger.Warn("ledger is inconsistent",
			slog.Int64("balance", report.Balance),
			slog.Int64("ledger_sum", report.LedgerSum))
	}
	return report, nil
}

func (l *Ledger) today(ctx context.Context) string {
	return clock.Day(l.clock.Now(), clock.LocationFrom(ctx, l.loc))
}

// sanitize убирает разметку, но хранит обычный текст: bluemonday экранирует сущности,
// их возвращаем обратно, экранирование - забота того, кто выводит текст
func (l *Ledger) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(l.policy.Sanitize(s)))
}

// loadAccount читает кошелёк внутри единицы работы и создаёт его при первом обращении
func (l *Ledger) loadAccount(ctx context.Context, tx storage.LedgerTx, accountID string) (*models.Account, error) {
	acc, err := tx.ReadAccount(ctx, accountID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, err
	}

	now := l.clock.Now()
	acc = &models.Account{ID: accountID, CreatedAt: now, UpdatedAt: now}
	if err := tx.UpsertAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (l *Ledger) applyCredit(ctx context.Context, tx storage.LedgerTx, acc *models.Account, amount int64, kind models.TransactionKind, description string) error {
	txn, err := l.newTransaction(acc.ID, amount, kind, description, nil)
	if err != nil {
		return err
	}
	acc.Balance += amount
	acc.UpdatedAt = txn.CreatedAt
	if err := tx.UpsertAccount(ctx, acc); err != nil {
		return err
	}
	return tx.AppendTransaction(ctx, txn)
}

func (l *Ledger) applyDebit(ctx context.Context, tx storage.LedgerTx, acc *models.Account, amount int64, description string, appID *string) (bool, error) {
	if acc.Balance < amount {
		return false, nil
	}
	txn, err := l.newTransaction(acc.ID, -amount, models.KindUsage, description, appID)
	if err != nil {
		return false, err
	}
	acc.Balance -= amount
	acc.UpdatedAt = txn.CreatedAt
	if err := tx.UpsertAccount(ctx, acc); err != nil {
		return false, err
	}
	if err := tx.AppendTransaction(ctx, txn); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) newTransaction(accountID string, amount int64, kind models.TransactionKind, description string, appID *string) (*models.Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	txn := &models.Transaction{
		ID:          id.String(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   l.clock.Now(),
	}
	// app_id хранится только у списаний за использование
	if kind == models.KindUsage && appID != nil {
		app := *appID
		txn.AppID = &app
	}
	return txn, nil
}

func purchaseDescription(coins int64, priceDisplay string) string {
	return fmt.Sprintf("purchase of %d coins for %s", coins, priceDisplay)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}
