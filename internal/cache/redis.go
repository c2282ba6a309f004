// Package cache держит короткоживущие копии истории транзакций в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/redis/go-redis/v9"
)

// ErrMiss - в кэше нет страницы истории
var ErrMiss = errors.New("history cache miss")

const keyPrefix = "ledger:history:"

// HistoryCache - кэш страниц истории, ключ страницы: аккаунт и лимит
type HistoryCache interface {
	Get(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
	Set(ctx context.Context, accountID string, limit int, txs []*models.Transaction) error
	Invalidate(ctx context.Context, accountID string) error
}

type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient создаёт клиента и проверяет соединение.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	const op = "cache.NewRedisClient"

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// RedisHistoryCache хранит все страницы аккаунта в одном hash, поле - лимит страницы.
// Так инвалидация сводится к одному DEL.
type RedisHistoryCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisHistoryCache(client redis.Cmdable, ttl time.Duration) *RedisHistoryCache {
	return &RedisHistoryCache{client: client, ttl: ttl}
}

func historyKey(accountID string) string {
	return keyPrefix + accountID
}

func (c *RedisHistoryCache) Get(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	const op = "cache.RedisHistoryCache.Get"

	raw, err := c.client.HGet(ctx, historyKey(accountID), strconv.Itoa(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var txs []*models.Transaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, accountID string, limit int, txs []*models.Transaction) error {
	const op = "cache.RedisHistoryCache.Set"

	raw, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := historyKey(accountID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context, accountID string) error {
	const op = "cache.RedisHistoryCache.Invalidate"

	if err := c.client.Del(ctx, historyKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
