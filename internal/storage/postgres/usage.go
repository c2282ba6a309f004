package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
)

func (t *ledgerTx) ReadUsageCounter(ctx context.Context, accountID, appID string) (*models.AppUsage, error) {
	usage := &models.AppUsage{AccountID: accountID, AppID: appID}
	row := t.tx.QueryRowContext(ctx,
		"SELECT usage_count, updated_at FROM app_usage WHERE account_id = $1 AND app_id = $2",
		accountID, appID,
	)
	if err := row.Scan(&usage.UsageCount, &usage.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return usage, nil
		}
		return nil, mapError(err)
	}
	return usage, nil
}

func (t *ledgerTx) UpsertUsageCounter(ctx context.Context, usage *models.AppUsage) error {
	query := `INSERT INTO app_usage (account_id, app_id, usage_count, updated_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (account_id, app_id) DO UPDATE SET usage_count = EXCLUDED.usage_count,
	              updated_at = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, query, usage.AccountID, usage.AppID, usage.UsageCount, usage.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert usage counter: %w", mapError(err))
	}
	return nil
}
