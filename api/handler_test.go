package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fx-autotrader/internal/broker"
	"fx-autotrader/internal/engine"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/performance"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type fakeLoader struct {
	candles []model.Candle
	err     error
	symbol  string
}

func (f *fakeLoader) LoadCandles(_ context.Context, symbol string, _, _ time.Time) ([]model.Candle, error) {
	f.symbol = symbol
	return f.candles, f.err
}

type fakeHistory struct {
	trades []model.ClosedTrade
	err    error
}

func (f fakeHistory) Recent(context.Context, int) ([]model.ClosedTrade, error) {
	return f.trades, f.err
}

type apiHarness struct {
	router *gin.Engine
	deps   Deps
	store  *storage.MemoryStore
	token  string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	nop := zap.NewNop()
	paper := broker.NewPaper(decimal.NewFromInt(10000), nop)
	eng := engine.New(model.DefaultAutoTraderConfig(), engine.Deps{
		Store:    paper,
		Account:  paper,
		Executor: engine.NewSyncExecutor(paper, nop),
	}, nop)
	store := storage.NewMemoryStore()

	deps := Deps{
		Engine:      eng,
		Paper:       paper,
		Store:       store,
		Performance: performance.NewTracker(),
		News:        risk.NewNewsFilter(),
		Auth:        Auth{User: "admin", PasswordHash: string(hash), Secret: testSecret},
	}
	h := &apiHarness{deps: deps, store: store}
	h.rebuild()

	token, err := GenerateToken("admin", testSecret)
	require.NoError(t, err)
	h.token = token
	return h
}

func (h *apiHarness) rebuild() {
	r := gin.New()
	NewHandler(h.deps, zap.NewNop()).Register(r)
	h.router = r
}

func (h *apiHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	h := newAPIHarness(t)
	h.token = ""

	w := h.do(http.MethodPost, "/api/v1/login", gin.H{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := parseToken("Bearer "+resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	w = h.do(http.MethodPost, "/api/v1/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/v1/login", gin.H{"username": "root", "password": "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/v1/login", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h := newAPIHarness(t)

	h.token = ""
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/autotrader/config", nil).Code)

	forged, err := GenerateToken("admin", "other-secret")
	require.NoError(t, err)
	h.token = forged
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/autotrader/config", nil).Code)

	_, err = parseToken("Token abc", testSecret)
	assert.ErrorIs(t, err, errMissingToken)
}

func TestConfigRoundTrip(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/v1/autotrader/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	cfg := model.DefaultAutoTraderConfig()
	cfg.Enabled = true
	cfg.Pairs = []string{"eur/usd", "gbp-usd"}
	w = h.do(http.MethodPut, "/api/v1/autotrader/config", cfg)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, h.deps.Engine.Config().Pairs)
	saved, err := h.store.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, saved.Enabled)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, saved.Pairs)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	h := newAPIHarness(t)

	cfg := model.DefaultAutoTraderConfig()
	cfg.Risk.MaxOpenTrades = 0
	w := h.do(http.MethodPut, "/api/v1/autotrader/config", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := h.store.LoadConfig(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStats(t *testing.T) {
	h := newAPIHarness(t)
	h.deps.Performance.Record(model.ClosedTrade{PositionID: "a", Profit: 20, CloseTime: time.Now()})

	w := h.do(http.MethodGet, "/api/v1/autotrader/stats?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Balance     float64 `json:"balance"`
		Performance struct {
			TotalTrades int `json:"total_trades"`
		} `json:"performance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10000.0, resp.Balance)
	assert.Equal(t, 1, resp.Performance.TotalTrades)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/autotrader/stats?days=x", nil).Code)
}

func TestConfirmSignalWithoutPending(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodPost, "/api/v1/autotrader/signals/EURUSD/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/v1/autotrader/signals", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestClosePosition(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()
	h.deps.Paper.UpdatePrices([]model.Quote{{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1000}})
	_, err := h.deps.Paper.PlaceOrder(ctx, model.Position{ID: "p1", Symbol: "EURUSD", Side: model.SideBuy, Volume: 1})
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/api/v1/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"p1"`)

	w = h.do(http.MethodDelete, "/api/v1/positions/p1?reason=operator", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, h.deps.Paper.OpenPositions())

	history := h.deps.Paper.History()
	require.Len(t, history, 1)
	assert.Equal(t, string(model.ActionManualClose), history[0].Reason)

	w = h.do(http.MethodDelete, "/api/v1/positions/p1", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "close stays pending until a tick confirms it")

	w = h.do(http.MethodDelete, "/api/v1/positions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNews(t *testing.T) {
	h := newAPIHarness(t)

	events := []risk.NewsEvent{{Title: "NFP", Currency: "USD", Impact: "high", Time: time.Date(2026, 11, 6, 13, 30, 0, 0, time.UTC)}}
	w := h.do(http.MethodPut, "/api/v1/autotrader/news", events)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, h.deps.News.Events(), 1)
	assert.Equal(t, "NFP", h.deps.News.Events()[0].Title)
}

func TestGetCandlesEmpty(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/v1/candles/eur-usd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetTrades(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/v1/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)

	h.deps.History = fakeHistory{trades: []model.ClosedTrade{{PositionID: "x1", Profit: 5}}}
	h.rebuild()
	w = h.do(http.MethodGet, "/api/v1/trades?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"position_id":"x1"`)

	h.deps.History = fakeHistory{err: errors.New("db down")}
	h.rebuild()
	assert.Equal(t, http.StatusInternalServerError, h.do(http.MethodGet, "/api/v1/trades", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/trades?limit=0", nil).Code)
}

func TestRunBacktest(t *testing.T) {
	h := newAPIHarness(t)
	req := gin.H{
		"symbol":     "eur/usd",
		"start_time": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"end_time":   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/api/v1/backtest", req).Code)

	loader := &fakeLoader{}
	h.deps.Loader = loader
	h.rebuild()

	w := h.do(http.MethodPost, "/api/v1/backtest", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "eur/usd", loader.symbol)

	var report model.BacktestReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "EURUSD", report.Symbol)
	assert.Zero(t, report.TotalTrades)

	loader.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, h.do(http.MethodPost, "/api/v1/backtest", req).Code)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/backtest", gin.H{"symbol": "EURUSD"}).Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(engine.ErrPositionNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(engine.ErrCapacityReached))
	assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("%w: EURUSD 4.0 pips", engine.ErrSpreadTooWide)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
