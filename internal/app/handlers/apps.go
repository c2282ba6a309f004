package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/linemk/lookbox-ledger/internal/service"
)

// appFromRequest проверяет {appID} и находит приложение в каталоге
func appFromRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, cat Catalog) (models.MiniApp, bool) {
	appID := chi.URLParam(r, "appID")
	if err := validate.Var(appID, "required,max=64"); err != nil {
		logger.Error("invalid app id", slog.String("app_id", appID), slog.Any("error", err))
		http.Error(w, "app id is required", http.StatusBadRequest)
		return models.MiniApp{}, false
	}

	app, err := cat.App(appID)
	if err != nil {
		respondError(w, logger, err)
		return models.MiniApp{}, false
	}
	return app, true
}

// AccessHandler обрабатывает запрос GET /api/apps/{appID}/access, состояние не меняется
func AccessHandler(log *slog.Logger, gate service.UsageGate, cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AccessHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}
		app, ok := appFromRequest(w, r, logger, cat)
		if !ok {
			return
		}

		info, err := gate.Evaluate(r.Context(), accountID, app.ID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, info)
	}
}

// OpenHandler обрабатывает запрос POST /api/apps/{appID}/open.
// Нехватка монет - 200 с success=false и needsCoins=true
func OpenHandler(log *slog.Logger, gate service.UsageGate, cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OpenHandler"
		logger := log.With(slog.String("op", op))

		accountID, ok := accountFromRequest(w, r, logger)
		if !ok {
			return
		}
		app, ok := appFromRequest(w, r, logger, cat)
		if !ok {
			return
		}

		res, err := gate.Consume(r.Context(), accountID, app.ID, app.Name)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, logger, http.StatusOK, res)
	}
}
