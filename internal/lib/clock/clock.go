package clock

import (
	"context"
	"sync"
	"time"
)

// DayLayout - формат календарного дня, строки сравниваются как есть
const DayLayout = "2006-01-02"

// Clock - источник текущего времени
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System возвращает часы на основе time.Now
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Manual - управляемые часы для тестов и сценариев со сменой дня
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual создаёт часы, стоящие на моменте t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance сдвигает часы вперёд
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set переставляет часы на момент t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Day возвращает календарный день момента t в зоне loc
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

type locationKey struct{}

// WithLocation кладёт часовой пояс пользователя в контекст
func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, locationKey{}, loc)
}

// LocationFrom достаёт часовой пояс из контекста, иначе возвращает fallback
func LocationFrom(ctx context.Context, fallback *time.Location) *time.Location {
	if loc, ok := ctx.Value(locationKey{}).(*time.Location); ok && loc != nil {
		return loc
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}
