package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address            string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout            time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" env-default:"120"`
}

// DatabaseConfig структура по работе с БД.
// Обязательность полей проверяется при выборе postgres-бэкенда
type DatabaseConfig struct {
	Host        string        `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port        int           `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User        string        `yaml:"user" env:"DB_USER"`
	Password    string        `yaml:"-" env:"DB_PASSWORD"`
	Name        string        `yaml:"name" env:"DB_NAME"`
	SSLMode     string        `yaml:"sslmode" env-default:"disable"`
	LockTimeout time.Duration `yaml:"lock_timeout" env-default:"2s"`
}

// DSN строка подключения для lib/pq
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL строка подключения для golang-migrate
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// JWTConfig настройка jwt, токены выпускает внешний провайдер
type JWTConfig struct {
	Secret string `yaml:"-" env:"JWT_SECRET"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// LedgerConfig настройки кошелька
type LedgerConfig struct {
	Backend       string `yaml:"backend" env:"LEDGER_BACKEND" env-default:"postgres"`
	DataFile      string `yaml:"data_file" env:"LEDGER_DATA_FILE" env-default:"./data/ledger.json"`
	Timezone      string `yaml:"timezone" env:"LEDGER_TIMEZONE" env-default:"America/Sao_Paulo"`
	DeviceAccount string `yaml:"device_account" env-default:"device"`
}

// Location часовой пояс по умолчанию для расчёта "сегодня"
func (l LedgerConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.Timezone)
}

// CatalogConfig пустой путь - встроенный каталог
type CatalogConfig struct {
	Path string `yaml:"path" env:"CATALOG_PATH"`
}

// RedisConfig пустой адрес отключает кэш истории
type RedisConfig struct {
	Address    string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password   string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB         int           `yaml:"db" env-default:"0"`
	HistoryTTL time.Duration `yaml:"history_ttl" env-default:"5m"`
}

type LogConfig struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"7"`
	Compress   bool   `yaml:"compress"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

// флаг мог уже зарегистрировать вызывающий код (migrator)
func fetchConfigPath() string {
	var path string

	if f := flag.Lookup("config"); f != nil {
		if !flag.Parsed() {
			flag.Parse()
		}
		path = f.Value.String()
	} else {
		flag.StringVar(&path, "config", "", "path to config file")
		flag.Parse()
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}

// Load читает файл, если путь задан (аргументом или CONFIG_PATH), иначе только окружение
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("can't read config from env: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	return &cfg, nil
}
