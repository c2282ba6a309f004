package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
)

// Catalog - справочник, из которого обработчики берут приложения и пакеты
type Catalog interface {
	Apps() []models.MiniApp
	App(id string) (models.MiniApp, error)
	Plans() []models.CoinPlan
	Plan(id string) (models.CoinPlan, error)
}

// PlanResponse - пакет монет с готовыми к показу ценами
type PlanResponse struct {
	ID           string `json:"id"`
	Coins        int64  `json:"coins"`
	Bonus        int64  `json:"bonus"`
	TotalCoins   int64  `json:"totalCoins"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	PriceDisplay string `json:"priceDisplay"`
	PricePerCoin string `json:"pricePerCoin"`
	Popular      bool   `json:"popular"`
}

// CatalogAppsHandler обрабатывает запрос GET /api/catalog/apps
func CatalogAppsHandler(log *slog.Logger, cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CatalogAppsHandler"
		logger := log.With(slog.String("op", op))

		respondJSON(w, logger, http.StatusOK, cat.Apps())
	}
}

// CatalogPlansHandler обрабатывает запрос GET /api/catalog/plans
func CatalogPlansHandler(log *slog.Logger, cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CatalogPlansHandler"
		logger := log.With(slog.String("op", op))

		plans := cat.Plans()
		resp := make([]PlanResponse, 0, len(plans))
		for _, p := range plans {
			resp = append(resp, PlanResponse{
				ID:           p.ID,
				Coins:        p.Coins,
				Bonus:        p.Bonus,
				TotalCoins:   p.TotalCoins(),
				Price:        p.Price.StringFixed(2),
				Currency:     p.Currency,
				PriceDisplay: p.PriceDisplay(),
				PricePerCoin: p.PricePerCoin().StringFixed(2),
				Popular:      p.Popular,
			})
		}
		respondJSON(w, logger, http.StatusOK, resp)
	}
}
