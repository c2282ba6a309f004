package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/service"
)

type historyQuery struct {
	Limit int `validate:"gte=0"`
}

// TransactionsResponse - страница истории, от новых записей к старым
type TransactionsResponse struct {
	Transactions []*models.Transaction `json:"transactions"`
}

// TransactionsHandler обрабатывает запрос GET /api/transactions?limit=N.
// Без limit отдаётся 20 записей, больше 100 не отдаётся
func TransactionsHandler(log *slog.Logger, ledger service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.TransactionsHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}

		var q historyQuery
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				logger.Error("invalid limit", slog.String("limit", raw), slog.Any("error", err))
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = limit
		}
		if err := validate.Struct(q); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		txs, err := ledger.GetTransactionHistory(r.Context(), accountID, q.Limit)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, TransactionsResponse{Transactions: txs})
	}
}
