// Package ratelimit - ограничение частоты запросов по ключу (token bucket).
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleTTL = 5 * time.Minute

type entry struct {
	limiter *rate.Limiter
	expires time.Time
}

// Limiter держит отдельное ведро на каждый ключ. Давно не использованные вёдра удаляются.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*entry
	now     func() time.Time
}

// New создаёт ограничитель на perMinute запросов в минуту для каждого ключа.
// perMinute <= 0 отключает ограничение.
func New(perMinute int) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	if perMinute <= 0 {
		l.limit = rate.Inf
		return l
	}
	l.limit = rate.Every(time.Minute / time.Duration(perMinute))
	l.burst = max(perMinute/2, 1)
	return l
}

func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if now.After(e.expires) {
			delete(l.entries, k)
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.expires = now.Add(idleTTL)
	return e.limiter.AllowN(now, 1)
}

// Middleware отвечает 429, когда ведро ключа пусто. Пустой ключ не ограничивается.
func Middleware(l *Limiter, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key != "" && !l.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"errors":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
