package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linemk/lookbox-ledger/internal/catalog"
	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/lib/clock"
	"github.com/linemk/lookbox-ledger/internal/service"
	"github.com/linemk/lookbox-ledger/internal/storage"
	"github.com/linemk/lookbox-ledger/internal/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var saoPaulo = mustLocation("America/Sao_Paulo")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store  *local.Store
	clock  *clock.Manual
	ledger *service.Ledger
	gate   service.UsageGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := local.NewMemory()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, saoPaulo))
	ledger := service.NewLedgerService(discardLogger(), store, clk, saoPaulo)
	return &fixture{
		store:  store,
		clock:  clk,
		ledger: ledger,
		gate:   service.NewUsageGate(discardLogger(), ledger),
	}
}

func (f *fixture) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	info, err := f.ledger.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return info.Balance
}

func (f *fixture) assertReconciled(t *testing.T, accountID string) {
	t.Helper()
	report, err := f.ledger.Audit(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "balance %d != ledger sum %d", report.Balance, report.LedgerSum)
}

func TestGetBalance_FirstTouchCreatesAccount(t *testing.T) {
	f := newFixture(t)

	info, err := f.ledger.GetBalance(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Balance)
	assert.Nil(t, info.LastDailyRewardDate)
	assert.True(t, info.CanClaimDaily)

	report, err := f.ledger.Audit(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TransactionCount)
	assert.True(t, report.Consistent)
}

func TestGetBalance_EmptyAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.GetBalance(context.Background(), "")
	assert.ErrorIs(t, err, service.ErrInvalidAccount)
}

func TestCredit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.Credit(ctx, "acc", 0, models.KindPurchase, "zero")
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	err = f.ledger.Credit(ctx, "acc", -5, models.KindPurchase, "negative")
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	err = f.ledger.Credit(ctx, "acc", 5, models.KindUsage, "usage is a debit")
	assert.ErrorIs(t, err, service.ErrInvalidKind)

	err = f.ledger.Credit(ctx, "acc", 5, models.TransactionKind("gift"), "unknown")
	assert.ErrorIs(t, err, service.ErrInvalidKind)

	assert.Equal(t, int64(0), f.balance(t, "acc"))
}

func TestCredit_AppendsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(ctx, "acc", 50, models.KindPurchase, "bought 50"))
	assert.Equal(t, int64(50), f.balance(t, "acc"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, models.KindPurchase, txs[0].Kind)
	assert.Equal(t, "bought 50", txs[0].Description)
	assert.Nil(t, txs[0].AppID)
	assert.NotEmpty(t, txs[0].ID)
	f.assertReconciled(t, "acc")
}

func TestCredit_SanitizesDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(ctx, "acc", 5, models.KindBonus, `<script>alert(1)</script><b>welcome</b>`))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "welcome", txs[0].Description)
}

func TestCredit_DescriptionKeepsPlainText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(ctx, "acc", 50, models.KindPurchase, "bought 50 & got Maria's bonus"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "bought 50 & got Maria's bonus", txs[0].Description)
}

// сценарий 4: списание ровно на весь баланс
func TestDebit_ExactBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appID := "tattoo"

	require.NoError(t, f.ledger.Credit(ctx, "acc", 10, models.KindPurchase, "bought 10"))

	ok, err := f.ledger.Debit(ctx, "acc", 10, "usage of tattoo", &appID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), f.balance(t, "acc"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-10), txs[0].Amount)
	assert.Equal(t, models.KindUsage, txs[0].Kind)
	require.NotNil(t, txs[0].AppID)
	assert.Equal(t, "tattoo", *txs[0].AppID)
	f.assertReconciled(t, "acc")
}

func TestDebit_InsufficientIsSideEffectFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(ctx, "acc", 9, models.KindPurchase, "bought 9"))

	ok, err := f.ledger.Debit(ctx, "acc", 10, "too much", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(9), f.balance(t, "acc"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = f.ledger.Debit(ctx, "acc", 0, "zero", nil)
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}

// сценарий 3 и смена дня
func TestClaimDailyReward_OncePerLocalDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ledger.ClaimDailyReward(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, service.DailyRewardCoins, res.Coins)
	assert.Equal(t, int64(2), res.Balance)

	info, err := f.ledger.GetBalance(ctx, "acc")
	require.NoError(t, err)
	require.NotNil(t, info.LastDailyRewardDate)
	assert.Equal(t, "2025-05-01", *info.LastDailyRewardDate)
	assert.False(t, info.CanClaimDaily)

	// позже в тот же день
	f.clock.Advance(11 * time.Hour)
	res, err = f.ledger.ClaimDailyReward(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, int64(2), f.balance(t, "acc"))

	// полночь в Сан-Паулу
	f.clock.Advance(time.Hour)
	res, err = f.ledger.ClaimDailyReward(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(4), f.balance(t, "acc"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, models.KindDailyReward, tx.Kind)
		assert.Equal(t, int64(2), tx.Amount)
	}
	f.assertReconciled(t, "acc")
}

func TestClaimDailyReward_DayFollowsCallerTimezone(t *testing.T) {
	f := newFixture(t)
	// 23:30 в Сан-Паулу - уже следующий день в UTC
	f.clock.Set(time.Date(2025, 5, 1, 23, 30, 0, 0, saoPaulo))

	res, err := f.ledger.ClaimDailyReward(context.Background(), "acc")
	require.NoError(t, err)
	require.True(t, res.Success)

	utcCtx := clock.WithLocation(context.Background(), time.UTC)
	info, err := f.ledger.GetBalance(utcCtx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", *info.LastDailyRewardDate)
	assert.True(t, info.CanClaimDaily, "in UTC it is already 2025-05-02")

	res, err = f.ledger.ClaimDailyReward(utcCtx, "acc")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = f.ledger.ClaimDailyReward(utcCtx, "acc")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClaimDailyReward_ConcurrentClaimsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.ledger.ClaimDailyReward(ctx, "acc")
			assert.NoError(t, err)
			if res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, int64(2), f.balance(t, "acc"))
}

func TestPurchase_CreditsCoins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Purchase(ctx, "acc", "starter", 50, "R$ 15.00"))
	assert.Equal(t, int64(50), f.balance(t, "acc"))

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 1)
	require.NoError(t, err)
	assert.Equal(t, "purchase of 50 coins for R$ 15.00", txs[0].Description)
	assert.Equal(t, models.KindPurchase, txs[0].Kind)

	err = f.ledger.Purchase(ctx, "acc", "starter", 0, "R$ 0.00")
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}

func TestPurchasePlan_BonusIsSeparateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := catalog.Default()
	require.NoError(t, err)
	plan, err := cat.Plan("popular")
	require.NoError(t, err)

	res, err := f.ledger.PurchasePlan(ctx, "acc", plan)
	require.NoError(t, err)
	assert.Equal(t, int64(110), res.Balance)
	assert.Equal(t, int64(100), res.CoinsGranted)
	assert.Equal(t, int64(10), res.Bonus)

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.KindBonus, txs[0].Kind)
	assert.Equal(t, int64(10), txs[0].Amount)
	assert.Equal(t, models.KindPurchase, txs[1].Kind)
	assert.Equal(t, "purchase of 100 coins for R$ 25.00", txs[1].Description)
	f.assertReconciled(t, "acc")

	starter, err := cat.Plan("starter")
	require.NoError(t, err)
	_, err = f.ledger.PurchasePlan(ctx, "acc", starter)
	require.NoError(t, err)

	txs, err = f.ledger.GetTransactionHistory(ctx, "acc", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 3, "starter plan has no bonus")
}

func TestGetTransactionHistory_OrderAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= 25; i++ {
		require.NoError(t, f.ledger.Credit(ctx, "acc", i, models.KindPurchase, "credit"))
		f.clock.Advance(time.Second)
	}

	txs, err := f.ledger.GetTransactionHistory(ctx, "acc", 0)
	require.NoError(t, err)
	require.Len(t, txs, service.DefaultHistoryLimit)
	assert.Equal(t, int64(25), txs[0].Amount)
	for i := 1; i < len(txs); i++ {
		assert.False(t, txs[i].CreatedAt.After(txs[i-1].CreatedAt))
		assert.Less(t, txs[i].Seq, txs[i-1].Seq)
	}

	txs, err = f.ledger.GetTransactionHistory(ctx, "acc", 1000)
	require.NoError(t, err)
	assert.Len(t, txs, 25)

	txs, err = f.ledger.GetTransactionHistory(ctx, "acc", 3)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestGetTransactionHistory_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	txs, err := f.ledger.GetTransactionHistory(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

// faultyStore ломает запись журнала, чтобы проверить откат единицы работы
type faultyStore struct {
	storage.LedgerStorage
	err error
}

type faultyTx struct {
	storage.LedgerTx
	err error
}

func (s *faultyStore) InTx(ctx context.Context, accountID string, fn func(tx storage.LedgerTx) error) error {
	return s.LedgerStorage.InTx(ctx, accountID, func(tx storage.LedgerTx) error {
		return fn(&faultyTx{LedgerTx: tx, err: s.err})
	})
}

func (t *faultyTx) AppendTransaction(context.Context, *models.Transaction) error {
	return t.err
}

func TestCredit_FaultRollsBackBalance(t *testing.T) {
	store := local.NewMemory()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	healthy := service.NewLedgerService(discardLogger(), store, clk, time.UTC)
	faulty := service.NewLedgerService(discardLogger(), &faultyStore{LedgerStorage: store, err: storage.ErrLocked}, clk, time.UTC)
	ctx := context.Background()

	require.NoError(t, healthy.Credit(ctx, "acc", 10, models.KindPurchase, "seed"))

	err := faulty.Credit(ctx, "acc", 5, models.KindPurchase, "lost")
	assert.True(t, errors.Is(err, storage.ErrLocked))

	res, err := faulty.ClaimDailyReward(ctx, "acc")
	assert.Error(t, err)
	assert.False(t, res.Success)

	info, err := healthy.GetBalance(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Balance)
	assert.True(t, info.CanClaimDaily, "failed claim must not mark the day")

	report, err := healthy.Audit(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 1, report.TransactionCount)
}
