package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/lookbox-ledger/internal/catalog"
	"github.com/linemk/lookbox-ledger/internal/service"
	"github.com/linemk/lookbox-ledger/internal/storage"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// respondError переводит ошибку сервиса в HTTP-статус. Ожидаемые исходы сюда не попадают:
// они возвращаются как 200 с success=false.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidAccount),
		errors.Is(err, service.ErrInvalidAppID),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidKind):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrAppNotFound), errors.Is(err, catalog.ErrPlanNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, storage.ErrLocked):
		status, msg = http.StatusServiceUnavailable, storage.ErrLocked.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Warn("request rejected", slog.Any("error", err))
	}
	http.Error(w, msg, status)
}
