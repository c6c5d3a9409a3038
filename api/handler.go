package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fx-autotrader/internal/broker"
	"fx-autotrader/internal/engine"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/performance"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TradeHistory serves closed trades from the database.
type TradeHistory interface {
	Recent(ctx context.Context, limit int) ([]model.ClosedTrade, error)
}

// CandleLoader serves stored candles for backtests.
type CandleLoader interface {
	LoadCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)
}

// Auth holds the single operator account.
type Auth struct {
	User         string
	PasswordHash string
	Secret       string
}

// Deps are the services behind the handlers. History and Loader are nil when
// Postgres is disabled.
type Deps struct {
	Engine      *engine.Engine
	Paper       *broker.Paper
	Store       storage.Store
	Performance *performance.Tracker
	News        *risk.NewsFilter
	History     TradeHistory
	Loader      CandleLoader
	Auth        Auth
}

type Handler struct {
	Deps
	logger *zap.Logger
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		Deps:   deps,
		logger: logger,
	}
}

// Register mounts the API under r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/login", h.Login)

	protected := v1.Group("")
	protected.Use(AuthMiddleware(h.Auth.Secret))
	{
		protected.GET("/autotrader/config", h.GetConfig)
		protected.PUT("/autotrader/config", h.UpdateConfig)
		protected.GET("/autotrader/logs", h.GetLogs)
		protected.GET("/autotrader/stats", h.GetStats)
		protected.GET("/autotrader/signals", h.GetSignals)
		protected.POST("/autotrader/signals/:symbol/confirm", h.ConfirmSignal)
		protected.GET("/autotrader/news", h.GetNews)
		protected.PUT("/autotrader/news", h.SetNews)
		protected.GET("/positions", h.GetPositions)
		protected.DELETE("/positions/:id", h.ClosePosition)
		protected.GET("/candles/:symbol", h.GetCandles)
		protected.GET("/trades", h.GetTrades)
		protected.POST("/backtest", h.RunBacktest)
	}
}

// Auth Handlers

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Auth.PasswordHash == "" || req.Username != h.Auth.User {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.Auth.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := GenerateToken(req.Username, h.Auth.Secret)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Autotrader Handlers

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Config())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg model.AutoTraderConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Engine.UpdateConfig(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg = h.Engine.Config()
	if err := h.Store.SaveConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error("failed to persist config", zap.Error(err))
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) GetLogs(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Logs())
}

func (h *Handler) GetStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"risk":           h.Engine.RiskState(),
		"performance":    h.Performance.Stats(days),
		"balance":        h.Paper.Balance(),
		"equity":         h.Paper.Equity(),
		"open_positions": len(h.Paper.OpenPositions()),
	})
}

func (h *Handler) GetSignals(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.PendingSignals())
}

func (h *Handler) ConfirmSignal(c *gin.Context) {
	pos, err := h.Engine.ConfirmSignal(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, pos)
}

func (h *Handler) GetNews(c *gin.Context) {
	c.JSON(http.StatusOK, h.News.Events())
}

func (h *Handler) SetNews(c *gin.Context) {
	var events []risk.NewsEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.News.SetEvents(events)
	c.JSON(http.StatusOK, gin.H{"events": len(events)})
}

// Position Handlers

func (h *Handler) GetPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"positions": h.Paper.OpenPositions(),
		"trackers":  h.Engine.Trackers(),
	})
}

func (h *Handler) ClosePosition(c *gin.Context) {
	reason := c.Query("reason")
	if err := h.Engine.ClosePosition(c.Request.Context(), c.Param("id"), reason); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "close requested", "id": c.Param("id")})
}

// Data Handlers

func (h *Handler) GetCandles(c *gin.Context) {
	candles := h.Engine.Candles(model.NormalizeSymbol(c.Param("symbol")))
	if candles == nil {
		candles = []model.Candle{}
	}
	c.JSON(http.StatusOK, candles)
}

func (h *Handler) GetTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	if h.History == nil {
		trades := h.Paper.History()
		if len(trades) > limit {
			trades = trades[len(trades)-limit:]
		}
		c.JSON(http.StatusOK, trades)
		return
	}

	trades, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to query trade history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (h *Handler) RunBacktest(c *gin.Context) {
	var req struct {
		Symbol         string                  `json:"symbol" binding:"required"`
		Config         *model.AutoTraderConfig `json:"config"`
		InitialBalance decimal.Decimal         `json:"initial_balance"`
		StartTime      time.Time               `json:"start_time" binding:"required"`
		EndTime        time.Time               `json:"end_time" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.Loader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle history is not available"})
		return
	}

	cfg := h.Engine.Config()
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg = *req.Config
	}
	if !req.InitialBalance.IsPositive() {
		req.InitialBalance = decimal.NewFromInt(10000)
	}

	// 1. Fetch history data for backtest
	candles, err := h.Loader.LoadCandles(c.Request.Context(), req.Symbol, req.StartTime, req.EndTime)
	if err != nil {
		h.logger.Error("failed to fetch history for backtest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch data"})
		return
	}

	// 2. Run Backtest
	tester := engine.NewBacktester(cfg, req.InitialBalance, h.logger)
	report := tester.Run(c.Request.Context(), req.Symbol, candles)

	c.JSON(http.StatusOK, report)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoPendingSignal), errors.Is(err, engine.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrCloseInProgress),
		errors.Is(err, engine.ErrRiskBlocked),
		errors.Is(err, engine.ErrCapacityReached),
		errors.Is(err, engine.ErrEngineDisabled),
		errors.Is(err, engine.ErrSymbolAlreadyOpen),
		errors.Is(err, engine.ErrNoQuote),
		errors.Is(err, engine.ErrSpreadTooWide):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
