package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/lookbox-ledger/internal/service"
)

// BalanceHandler обрабатывает запрос GET /api/balance.
// Первое обращение создаёт пустой кошелёк
func BalanceHandler(log *slog.Logger, ledger service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.BalanceHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}

		info, err := ledger.GetBalance(r.Context(), accountID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, info)
	}
}

// DailyRewardHandler обрабатывает запрос POST /api/daily-reward.
// Повторная попытка в тот же день - 200 с success=false
func DailyRewardHandler(log *slog.Logger, ledger service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DailyRewardHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}

		res, err := ledger.ClaimDailyReward(r.Context(), accountID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, res)
	}
}

// AuditHandler обрабатывает запрос GET /api/audit
func AuditHandler(log *slog.Logger, ledger service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AuditHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}

		report, err := ledger.Audit(r.Context(), accountID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, report)
	}
}
