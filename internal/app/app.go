package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/linemk/lookbox-ledger/internal/app/handlers"
	"github.com/linemk/lookbox-ledger/internal/cache"
	"github.com/linemk/lookbox-ledger/internal/catalog"
	"github.com/linemk/lookbox-ledger/internal/config"
	"github.com/linemk/lookbox-ledger/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/lookbox-ledger/internal/lib/clock"
	"github.com/linemk/lookbox-ledger/internal/lib/logger/handlers/urllog"
	"github.com/linemk/lookbox-ledger/internal/lib/ratelimit"
	"github.com/linemk/lookbox-ledger/internal/service"
	"github.com/linemk/lookbox-ledger/internal/storage"
	"github.com/linemk/lookbox-ledger/internal/storage/local"
	"github.com/linemk/lookbox-ledger/internal/storage/postgres"
	"github.com/pkg/errors"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   storage.LedgerStorage
	Ledger  *service.Ledger
	Gate    service.UsageGate
	Catalog *catalog.Catalog

	closers []io.Closer
}

// NewApp создаёт новый экземпляр App: выбирает хранилище по ledger.backend,
// при заданном redis.address подключает кэш истории
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ledger timezone %q", cfg.Ledger.Timezone)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load catalog")
	}

	a := &App{
		Config:  cfg,
		Logger:  log,
		Catalog: cat,
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Address != "" {
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		a.closers = append(a.closers, client)
		store = cache.NewCachedStorage(log, store, cache.NewRedisHistoryCache(client, cfg.Redis.HistoryTTL))
		log.Info("history cache enabled", slog.String("address", cfg.Redis.Address))
	}

	a.Store = store
	a.Ledger = service.NewLedgerService(log, store, clock.System(), loc)
	a.Gate = service.NewUsageGate(log, a.Ledger)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.LedgerStorage, error) {
	cfg := a.Config

	switch cfg.Ledger.Backend {
	case config.BackendLocal:
		store, err := local.Open(cfg.Ledger.DataFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open local ledger")
		}
		a.Logger.Info("using local ledger", slog.String("file", cfg.Ledger.DataFile))
		return store, nil

	case config.BackendPostgres:
		if cfg.Database.User == "" || cfg.Database.Name == "" {
			return nil, errors.New("database user and name are required for postgres backend")
		}
		if cfg.Database.Password == "" {
			return nil, errors.New("DB_PASSWORD environment variable is not set")
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		a.closers = append(a.closers, db)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, errors.Wrap(err, "failed to ping database")
		}
		a.Logger.Info("using postgres ledger", slog.String("host", cfg.Database.Host))
		return postgres.NewLedgerRepository(db, cfg.Database.LockTimeout), nil
	}

	return nil, errors.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

// Router собирает HTTP API. Маршруты с аккаунтом закрыты JWT и ограничены по частоте
func (a *App) Router() http.Handler {
	log := a.Logger

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Get("/api/catalog/apps", handlers.CatalogAppsHandler(log, a.Catalog))
	router.Get("/api/catalog/plans", handlers.CatalogPlansHandler(log, a.Catalog))

	limiter := ratelimit.New(a.Config.HTTPServer.RateLimitPerMinute)

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(a.Config.JWT.Secret))
		r.Use(ratelimit.Middleware(limiter, func(r *http.Request) string {
			accountID, _ := jwtmiddleware.FromContext(r.Context())
			return accountID
		}))
		r.Use(handlers.TimezoneMiddleware(log))

		r.Get("/api/balance", handlers.BalanceHandler(log, a.Ledger))
		r.Post("/api/daily-reward", handlers.DailyRewardHandler(log, a.Ledger))
		r.Post("/api/purchase", handlers.PurchaseHandler(log, a.Ledger, a.Catalog))
		r.Get("/api/apps/{appID}/access", handlers.AccessHandler(log, a.Gate, a.Catalog))
		r.Post("/api/apps/{appID}/open", handlers.OpenHandler(log, a.Gate, a.Catalog))
		r.Get("/api/transactions", handlers.TransactionsHandler(log, a.Ledger))
		r.Get("/api/audit", handlers.AuditHandler(log, a.Ledger))
	})

	return router
}

// Close закрывает подключения в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Error("failed to close resource", slog.Any("error", err))
		}
	}
	a.closers = nil
}
