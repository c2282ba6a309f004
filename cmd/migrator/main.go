package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/linemk/lookbox-ledger/internal/config"
	"github.com/linemk/lookbox-ledger/internal/lib/logger"
)

const migrationTableName = "ledger_migrations"

// buildMigrateDSN добавляет к строке подключения таблицу версий мигратора
func buildMigrateDSN(dbCfg config.DatabaseConfig, migrationTable string) string {
	return dbCfg.URL() + "&x-migrations-table=" + url.QueryEscape(migrationTable)
}

func main() {
	var (
		migrationsPathFlag string
		down               bool
	)
	// -config регистрируем здесь же: config.MustLoad подхватит уже разобранный флаг
	flag.String("config", "", "path to config file")
	flag.StringVar(&migrationsPathFlag, "migrations-path", "", "path to migration files")
	flag.BoolVar(&down, "down", false, "roll back all migrations")
	flag.Parse()

	cfg := config.MustLoad()

	log, closer := logger.SetupLogger(cfg.Env, logger.FileOptions{})
	defer closer.Close()

	if err := run(log, cfg, migrationsPathFlag, down); err != nil {
		log.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg *config.Config, migrationsPathFlag string, down bool) error {
	migrationsPath := cfg.Migrations.Path
	if migrationsPathFlag != "" {
		migrationsPath = migrationsPathFlag
	}

	if cfg.Database.Password == "" {
		return errors.New("DB_PASSWORD environment variable is required")
	}

	log.Info("running migrations",
		slog.String("path", migrationsPath),
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Name),
		slog.Bool("down", down),
	)

	// Создаем объект мигратора
	m, err := migrate.New("file://"+migrationsPath, buildMigrateDSN(cfg.Database, migrationTableName))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("no migrations to apply")
	case err != nil:
		return err
	default:
		log.Info("migrations applied successfully")
	}

	return listTables(log, cfg.Database)
}

func listTables(log *slog.Logger, dbCfg config.DatabaseConfig) error {
	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name
	`)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading rows: %w", err)
	}

	log.Info("current tables", slog.Any("tables", tables))
	return nil
}
