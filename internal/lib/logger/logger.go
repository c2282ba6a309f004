package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/linemk/lookbox-ledger/internal/lib/logger/handlers/slogpretty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// switching logger
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// FileOptions - ротация файла логов. Пустой Path отключает запись в файл
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SetupLogger инициализирует логгер в зависимости от переданного окружения
// для локальной разработки используется цветной вывод (pretty), а для dev/prod – JSON
func SetupLogger(env string, file FileOptions) (*slog.Logger, io.Closer) {
	return New(env, os.Stdout, file)
}

// New работает как SetupLogger, но пишет консольный вывод в w.
// Закрывать нужно возвращённый io.Closer: он держит файл логов.
func New(env string, w io.Writer, file FileOptions) (*slog.Logger, io.Closer) {
	var console slog.Handler
	level := slog.LevelInfo

	switch env {
	case EnvLocal:
		level = slog.LevelDebug
		console = prettyHandler(w)
	case EnvDev:
		level = slog.LevelDebug
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	if file.Path == "" {
		return slog.New(console), nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    nz(file.MaxSizeMB, 100),
		MaxBackups: nz(file.MaxBackups, 3),
		MaxAge:     nz(file.MaxAgeDays, 7),
		Compress:   file.Compress,
	}
	fileHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: level})

	return slog.New(fanout{console, fileHandler}), lj
}

func prettyHandler(w io.Writer) slog.Handler {
	color.NoColor = false

	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	return opts.NewPrettyHandler(w)
}

func nz(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout раздаёт запись всем обработчикам
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
