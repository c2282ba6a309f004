package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/lookbox-ledger/internal/service"
)

// PurchaseRequest - тело запроса покупки пакета монет
type PurchaseRequest struct {
	PlanID string `json:"planId" validate:"required,max=64"`
}

// PurchaseHandler обрабатывает запрос POST /api/purchase.
// Оплата не проверяется: пакет из каталога зачисляется сразу
func PurchaseHandler(log *slog.Logger, ledger service.LedgerService, cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PurchaseHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}

		var req PurchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		plan, err := cat.Plan(req.PlanID)
		if err != nil {
			respondError(w, logger, err)
			return
		}

		res, err := ledger.PurchasePlan(r.Context(), accountID, plan)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, res)
	}
}
