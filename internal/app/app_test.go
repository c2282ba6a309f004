package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/linemk/lookbox-ledger/internal/app"
	"github.com/linemk/lookbox-ledger/internal/config"
	security "github.com/linemk/lookbox-ledger/internal/jwt-new"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "testsecret"

type balanceResponse struct {
	Balance       int64 `json:"balance"`
	CanClaimDaily bool  `json:"canClaimDaily"`
}

type openResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	NeedsCoins bool   `json:"needsCoins"`
	UsesLeft   int    `json:"usesLeft"`
	Balance    int64  `json:"balance"`
}

type transactionsResponse struct {
	Transactions []struct {
		Amount int64   `json:"amount"`
		Kind   string  `json:"kind"`
		AppID  *string `json:"app_id"`
	} `json:"transactions"`
}

func newTestServer(t *testing.T, rateLimit int) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Env:        "local",
		HTTPServer: config.HTTPServerConfig{RateLimitPerMinute: rateLimit},
		JWT:        config.JWTConfig{Secret: testSecret},
		Ledger: config.LedgerConfig{
			Backend:  config.BackendLocal,
			DataFile: filepath.Join(t.TempDir(), "ledger.json"),
			Timezone: "America/Sao_Paulo",
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.NewApp(context.Background(), log, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, accountID string) string {
	t.Helper()
	token, err := security.NewToken(accountID, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func call(t *testing.T, srv *httptest.Server, token, method, path, body string, out any) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewApp_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Ledger: config.LedgerConfig{Backend: "mongo"}}
	_, err := app.NewApp(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	assert.Error(t, err)
}

func TestNewApp_PostgresRequiresCredentials(t *testing.T) {
	cfg := &config.Config{Ledger: config.LedgerConfig{Backend: config.BackendPostgres}}
	_, err := app.NewApp(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	assert.Error(t, err)
}

// сценарий без токена
func TestAPI_Unauthorized(t *testing.T) {
	srv := newTestServer(t, 0)

	assert.Equal(t, http.StatusUnauthorized, call(t, srv, "", http.MethodGet, "/api/balance", "", nil))
	assert.Equal(t, http.StatusOK, call(t, srv, "", http.MethodGet, "/api/catalog/plans", "", nil))
}

// сценарий: два бесплатных открытия, отказ, покупка, платное открытие
func TestAPI_FreeUsesPurchaseAndPaidUse(t *testing.T) {
	srv := newTestServer(t, 0)
	token := tokenFor(t, "user-1")

	var opened openResponse
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/apps/tattoo/open", "", &opened))
	assert.True(t, opened.Success)
	assert.Equal(t, 1, opened.UsesLeft)

	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/apps/tattoo/open", "", &opened))
	assert.True(t, opened.Success)
	assert.Equal(t, 0, opened.UsesLeft)

	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/apps/tattoo/open", "", &opened))
	assert.False(t, opened.Success)
	assert.True(t, opened.NeedsCoins)
	assert.Contains(t, opened.Message, "Tatuagem Virtual")

	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/purchase", `{"planId":"starter"}`, nil))

	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/apps/tattoo/open", "", &opened))
	assert.True(t, opened.Success)
	assert.Equal(t, int64(40), opened.Balance)

	var balance balanceResponse
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodGet, "/api/balance", "", &balance))
	assert.Equal(t, int64(40), balance.Balance)

	var history transactionsResponse
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodGet, "/api/transactions?limit=10", "", &history))
	require.Len(t, history.Transactions, 2)
	assert.Equal(t, "usage", history.Transactions[0].Kind)
	require.NotNil(t, history.Transactions[0].AppID)
	assert.Equal(t, "tattoo", *history.Transactions[0].AppID)
	assert.Equal(t, "purchase", history.Transactions[1].Kind)

	var audit struct {
		Consistent bool `json:"consistent"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodGet, "/api/audit", "", &audit))
	assert.True(t, audit.Consistent)
}

// сценарий ежедневной награды: второй запрос в тот же день отклоняется
func TestAPI_DailyReward(t *testing.T) {
	srv := newTestServer(t, 0)
	token := tokenFor(t, "user-2")

	var reward struct {
		Success bool  `json:"success"`
		Coins   int64 `json:"coins"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/daily-reward", "", &reward))
	assert.True(t, reward.Success)
	assert.Equal(t, int64(2), reward.Coins)

	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodPost, "/api/daily-reward", "", &reward))
	assert.False(t, reward.Success)

	var balance balanceResponse
	require.Equal(t, http.StatusOK, call(t, srv, token, http.MethodGet, "/api/balance", "", &balance))
	assert.Equal(t, int64(2), balance.Balance)
	assert.False(t, balance.CanClaimDaily)
}

// аккаунты не видят данные друг друга
func TestAPI_AccountsAreIsolated(t *testing.T) {
	srv := newTestServer(t, 0)

	require.Equal(t, http.StatusOK, call(t, srv, tokenFor(t, "rich"), http.MethodPost, "/api/purchase", `{"planId":"premium"}`, nil))

	var balance balanceResponse
	require.Equal(t, http.StatusOK, call(t, srv, tokenFor(t, "poor"), http.MethodGet, "/api/balance", "", &balance))
	assert.Equal(t, int64(0), balance.Balance)

	require.Equal(t, http.StatusOK, call(t, srv, tokenFor(t, "rich"), http.MethodGet, "/api/balance", "", &balance))
	assert.Equal(t, int64(230), balance.Balance)
}

func TestAPI_RateLimit(t *testing.T) {
	srv := newTestServer(t, 2) // ведро на 1 запрос
	token := tokenFor(t, "user-3")

	assert.Equal(t, http.StatusOK, call(t, srv, token, http.MethodGet, "/api/balance", "", nil))
	assert.Equal(t, http.StatusTooManyRequests, call(t, srv, token, http.MethodGet, "/api/balance", "", nil))
	assert.Equal(t, http.StatusOK, call(t, srv, tokenFor(t, "user-4"), http.MethodGet, "/api/balance", "", nil))
}
