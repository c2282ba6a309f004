package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/storage"
)

func (t *ledgerTx) ReadAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account := &models.Account{}
	var lastReward sql.NullString
	row := t.tx.QueryRowContext(ctx,
		"SELECT id, balance, last_daily_reward, created_at, updated_at FROM accounts WHERE id = $1 FOR UPDATE",
		accountID,
	)
	if err := row.Scan(&account.ID, &account.Balance, &lastReward, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, mapError(err)
	}
	if lastReward.Valid {
		day := lastReward.String
		account.LastDailyRewardDate = &day
	}
	return account, nil
}

func (t *ledgerTx) UpsertAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (id, balance, last_daily_reward, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance,
	              last_daily_reward = EXCLUDED.last_daily_reward, updated_at = EXCLUDED.updated_at`
	var lastReward sql.NullString
	if account.LastDailyRewardDate != nil {
		lastReward = sql.NullString{String: *account.LastDailyRewardDate, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, query,
		account.ID, account.Balance, lastReward, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", mapError(err))
	}
	return nil
}
