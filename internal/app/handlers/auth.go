package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/lookbox-ledger/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/lookbox-ledger/internal/lib/clock"
)

// TimezoneHeader - IANA-зона пользователя, по ней считается календарный день
const TimezoneHeader = "X-Timezone"

// accountFromRequest достаёт аккаунт, установленный JWT middleware, и отвечает 401, если его нет
func accountFromRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	accountID, ok := jwtmiddleware.FromContext(r.Context())
	if !ok {
		logger.Error("account not found in context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return accountID, true
}

// TimezoneMiddleware кладёт зону из заголовка X-Timezone в контекст. Неизвестная зона - 400.
func TimezoneMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := r.Header.Get(TimezoneHeader)
			if name == "" {
				next.ServeHTTP(w, r)
				return
			}

			loc, err := time.LoadLocation(name)
			if err != nil {
				log.Warn("invalid timezone header",
					slog.String("op", "handlers.TimezoneMiddleware"),
					slog.String("timezone", name),
					slog.Any("error", err))
				http.Error(w, "invalid timezone", http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r.WithContext(clock.WithLocation(r.Context(), loc)))
		})
	}
}
