// Package local реализует хранилище кошелька одного устройства: снимок в JSON-файле
// перечитывается под блокировкой файла и после каждой успешной единицы работы записывается обратно.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/storage"
)

const (
	storageName     = "json_snapshot"
	snapshotVersion = 1
)

var errForeignAccount = errors.New("account is outside of the current unit of work")

type meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type accountRecord struct {
	ID                  string                     `json:"id"`
	Balance             int64                      `json:"balance"`
	LastDailyRewardDate *string                    `json:"last_daily_reward,omitempty"`
	CreatedAt           time.Time                  `json:"created_at"`
	UpdatedAt           time.Time                  `json:"updated_at"`
	Usage               map[string]models.AppUsage `json:"usage"`
	Transactions        []*models.Transaction      `json:"transactions"` // в порядке добавления
}

type snapshot struct {
	Meta     meta                      `json:"_meta"`
	NextSeq  int64                     `json:"next_seq"`
	Accounts map[string]*accountRecord `json:"accounts"`
}

// lockRetryDelay - пауза между попытками взять блокировку файла
const lockRetryDelay = 10 * time.Millisecond

// Store - файловое хранилище. Единицы работы внутри процесса сериализуются мьютексом,
// между процессами - эксклюзивной блокировкой файла <path>.lock.
type Store struct {
	mu   sync.Mutex
	path string       // пустой путь - только память
	lock *flock.Flock // nil для хранилища в памяти
	snap *snapshot
}

var _ storage.LedgerStorage = (*Store)(nil)

// NewMemory создаёт хранилище без файла (тесты, временные сессии).
func NewMemory() *Store {
	return &Store{snap: newSnapshot()}
}

// Open проверяет снимок в path (пустой, если файла ещё нет) и готовит блокировку.
// Сам снимок перечитывается в начале каждой единицы работы.
func Open(path string) (*Store, error) {
	const op = "storage.local.Open"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create data dir: %w", op, err)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{path: path, lock: flock.New(path + ".lock"), snap: snap}, nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist), err == nil && len(data) == 0:
		return newSnapshot(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Accounts == nil {
		snap.Accounts = make(map[string]*accountRecord)
	}
	return &snap, nil
}

func newSnapshot() *snapshot {
	return &snapshot{
		Meta:     meta{Storage: storageName, Version: snapshotVersion},
		Accounts: make(map[string]*accountRecord),
	}
}

// acquire берёт мьютекс и блокировку файла, затем перечитывает снимок:
// его мог изменить другой процесс. release снимает обе блокировки.
func (s *Store) acquire(ctx context.Context) (release func(), err error) {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.lock == nil {
		return s.mu.Unlock, nil
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = errors.New("data file is locked")
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to lock data file: %w", err)
	}

	snap, err := readSnapshot(s.path)
	if err != nil {
		_ = s.lock.Unlock()
		s.mu.Unlock()
		return nil, err
	}
	s.snap = snap

	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}

// InTx работает с копией записи аккаунта. Копия подменяет оригинал только после того,
// как fn вернула nil и снимок записан на диск.
func (s *Store) InTx(ctx context.Context, accountID string, fn func(tx storage.LedgerTx) error) error {
	const op = "storage.local.InTx"

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	prev := s.snap.Accounts[accountID]
	ltx := &ledgerTx{
		accountID: accountID,
		record:    prev.clone(),
		nextSeq:   s.snap.NextSeq,
	}
	if err := fn(ltx); err != nil {
		return err
	}
	if !ltx.dirty {
		return nil
	}

	prevSeq := s.snap.NextSeq
	s.snap.Accounts[accountID] = ltx.record
	s.snap.NextSeq = ltx.nextSeq

	if err := s.flushLocked(); err != nil {
		if prev == nil {
			delete(s.snap.Accounts, accountID)
		} else {
			s.snap.Accounts[accountID] = prev
		}
		s.snap.NextSeq = prevSeq
		return fmt.Errorf("%s: failed to persist snapshot: %w", op, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := s.snap.Accounts[accountID]
	if rec == nil {
		return []*models.Transaction{}, nil
	}

	out := make([]*models.Transaction, 0, len(rec.Transactions))
	for _, tx := range rec.Transactions {
		cp := *tx
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// flushLocked пишет снимок во временный файл и атомарно подменяет основной через rename.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	s.snap.Meta.Storage = storageName
	s.snap.Meta.Version = snapshotVersion
	s.snap.Meta.Timestamp = time.Now()

	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (r *accountRecord) clone() *accountRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.LastDailyRewardDate != nil {
		day := *r.LastDailyRewardDate
		cp.LastDailyRewardDate = &day
	}
	cp.Usage = make(map[string]models.AppUsage, len(r.Usage))
	for k, v := range r.Usage {
		cp.Usage[k] = v
	}
	// записи журнала неизменяемы, достаточно нового среза
	cp.Transactions = append([]*models.Transaction(nil), r.Transactions...)
	return &cp
}

// ledgerTx - примитивы storage.LedgerTx над копией записи одного аккаунта
type ledgerTx struct {
	accountID string
	record    *accountRecord
	nextSeq   int64
	dirty     bool
}

var _ storage.LedgerTx = (*ledgerTx)(nil)

func (t *ledgerTx) check(accountID string) error {
	if accountID != t.accountID {
		return fmt.Errorf("%w: %q", errForeignAccount, accountID)
	}
	return nil
}

func (t *ledgerTx) ReadAccount(_ context.Context, accountID string) (*models.Account, error) {
	if err := t.check(accountID); err != nil {
		return nil, err
	}
	if t.record == nil {
		return nil, storage.ErrAccountNotFound
	}
	account := &models.Account{
		ID:        t.record.ID,
		Balance:   t.record.Balance,
		CreatedAt: t.record.CreatedAt,
		UpdatedAt: t.record.UpdatedAt,
	}
	if t.record.LastDailyRewardDate != nil {
		day := *t.record.LastDailyRewardDate
		account.LastDailyRewardDate = &day
	}
	return account, nil
}

func (t *ledgerTx) UpsertAccount(_ context.Context, account *models.Account) error {
	if err := t.check(account.ID); err != nil {
		return err
	}
	if t.record == nil {
		t.record = &accountRecord{
			ID:        account.ID,
			CreatedAt: account.CreatedAt,
			Usage:     make(map[string]models.AppUsage),
		}
	}
	t.record.Balance = account.Balance
	t.record.UpdatedAt = account.UpdatedAt
	t.record.LastDailyRewardDate = nil
	if account.LastDailyRewardDate != nil {
		day := *account.LastDailyRewardDate
		t.record.LastDailyRewardDate = &day
	}
	t.dirty = true
	return nil
}

func (t *ledgerTx) ReadUsageCounter(_ context.Context, accountID, appID string) (*models.AppUsage, error) {
	if err := t.check(accountID); err != nil {
		return nil, err
	}
	if t.record != nil {
		if usage, ok := t.record.Usage[appID]; ok {
			return &usage, nil
		}
	}
	return &models.AppUsage{AccountID: accountID, AppID: appID}, nil
}

func (t *ledgerTx) UpsertUsageCounter(_ context.Context, usage *models.AppUsage) error {
	if err := t.check(usage.AccountID); err != nil {
		return err
	}
	if t.record == nil {
		return storage.ErrAccountNotFound
	}
	t.record.Usage[usage.AppID] = *usage
	t.dirty = true
	return nil
}

func (t *ledgerTx) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	if err := t.check(tx.AccountID); err != nil {
		return err
	}
	if t.record == nil {
		return storage.ErrAccountNotFound
	}
	t.nextSeq++
	tx.Seq = t.nextSeq
	cp := *tx
	t.record.Transactions = append(t.record.Transactions, &cp)
	t.dirty = true
	return nil
}

func (t *ledgerTx) SumTransactions(_ context.Context, accountID string) (int64, int, error) {
	if err := t.check(accountID); err != nil {
		return 0, 0, err
	}
	if t.record == nil {
		return 0, 0, nil
	}
	var sum int64
	for _, tx := range t.record.Transactions {
		sum += tx.Amount
	}
	return sum, len(t.record.Transactions), nil
}
