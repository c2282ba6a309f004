package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
)

func (t *ledgerTx) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `INSERT INTO coin_transactions (id, account_id, amount, kind, description, app_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`
	var appID sql.NullString
	if tx.AppID != nil {
		appID = sql.NullString{String: *tx.AppID, Valid: true}
	}
	err := t.tx.QueryRowContext(ctx, query,
		tx.ID, tx.AccountID, tx.Amount, string(tx.Kind), tx.Description, appID, tx.CreatedAt,
	).Scan(&tx.Seq)
	if err != nil {
		return fmt.Errorf("failed to create coin transaction: %w", mapError(err))
	}
	return nil
}

func (t *ledgerTx) SumTransactions(ctx context.Context, accountID string) (int64, int, error) {
	var (
		sum   int64
		count int
	)
	row := t.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM coin_transactions WHERE account_id = $1",
		accountID,
	)
	if err := row.Scan(&sum, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to sum coin transactions: %w", mapError(err))
	}
	return sum, count, nil
}

// ListTransactions читает журнал вне блокировки аккаунта: записи неизменяемы.
func (r *LedgerRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, seq, account_id, amount, kind, description, app_id, created_at
		FROM coin_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query coin transactions: %w", mapError(err))
	}
	defer rows.Close()

	transactions := make([]*models.Transaction, 0, limit)
	for rows.Next() {
		tx := &models.Transaction{}
		var (
			kind  string
			appID sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.Seq, &tx.AccountID, &tx.Amount, &kind, &tx.Description, &appID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin transaction: %w", mapError(err))
		}
		tx.Kind = models.TransactionKind(kind)
		if appID.Valid {
			id := appID.String
			tx.AppID = &id
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read coin transactions: %w", mapError(err))
	}
	return transactions, nil
}
