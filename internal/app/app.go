package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fx-autotrader/api"
	"fx-autotrader/internal/broker"
	"fx-autotrader/internal/config"
	"fx-autotrader/internal/connector"
	"fx-autotrader/internal/engine"
	"fx-autotrader/internal/feed"
	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/notify"
	"fx-autotrader/internal/performance"
	"fx-autotrader/internal/processor"
	"fx-autotrader/internal/push"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/storage"
	"fx-autotrader/internal/tradelog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	intentWorkers   = 4
	intentQueueSize = 256
	seedCandles     = 200
	simStepPips     = 1.0
)

// App defines the application structure and its dependencies
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *pgxpool.Pool
	NC    *nats.Conn
	JS    nats.JetStreamContext
	Redis *redis.Client

	Store       storage.Store
	Paper       *broker.Paper
	Engine      *engine.Engine
	Pool        *engine.WorkerPool
	News        *risk.NewsFilter
	Performance *performance.Tracker
	TradeSaver  *storage.TradeSaver
	CandleSaver *storage.CandleSaver
	Loader      *engine.DataLoader
	Feed        feed.Feed
	QuoteStream *connector.QuoteStream
	PushGateway *push.Gateway
	HTTPServer  *http.Server

	wg sync.WaitGroup
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init(cfg.LogLevel)
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	if a.Config.EnablePostgres {
		dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = dbPool

		if err := a.initDatabase(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	// 2. NATS
	if a.Config.EnableNATS {
		nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.NC = nc
		a.JS = js
	}

	// 3. Config store
	a.Store = a.initStore(ctx)

	// 4. Services
	return a.initServices(ctx)
}

// initStore prefers Redis and falls back to memory when it is not configured
// or not reachable.
func (a *App) initStore(ctx context.Context) storage.Store {
	if a.Config.RedisURL == "" {
		a.Logger.Info("redis not configured, using in-memory store")
		return storage.NewMemoryStore()
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		a.Logger.Warn("invalid redis url, using in-memory store", zap.Error(err))
		return storage.NewMemoryStore()
	}
	client := redis.NewClient(opts)
	store := storage.NewRedisStore(client, a.Config.RedisPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		a.Logger.Warn("redis unreachable, using in-memory store", zap.Error(err))
		client.Close()
		return storage.NewMemoryStore()
	}
	a.Redis = client
	a.Logger.Info("using redis store", zap.String("prefix", a.Config.RedisPrefix))
	return store
}

func (a *App) initServices(ctx context.Context) error {
	autoCfg := a.loadAutoTraderConfig(ctx)

	a.Paper = broker.NewPaper(decimal.NewFromFloat(a.Config.InitialBalance), a.Logger)
	a.Performance = performance.NewTracker()

	if a.DB != nil {
		a.TradeSaver = storage.NewTradeSaver(a.DB, a.Logger, time.Second, 100)
		a.CandleSaver = storage.NewCandleSaver(a.DB, a.Logger, 5*time.Second, 500)
		a.Loader = engine.NewDataLoader(a.DB)

		trades, err := a.TradeSaver.Recent(ctx, performance.MaxTrades)
		if err != nil {
			a.Logger.Warn("failed to load trade history", zap.Error(err))
		}
		a.Performance.Load(trades)
	}
	a.Paper.OnClose(func(t model.ClosedTrade) {
		a.Performance.Record(t)
		if a.TradeSaver != nil {
			a.TradeSaver.Add(t)
		}
	})

	var candlePub processor.Publisher
	if a.JS != nil {
		candlePub = a.JS
	}
	candles := processor.NewCandleBuilder(a.Config.CandlePeriod(), candlePub, a.Logger)
	if a.CandleSaver != nil {
		candles.OnComplete(a.CandleSaver.Add)
	}
	if a.Loader != nil {
		for _, sym := range autoCfg.Pairs {
			seed, err := a.Loader.LoadRecent(ctx, sym, seedCandles)
			if err != nil {
				a.Logger.Warn("failed to seed candles", zap.String("symbol", sym), zap.Error(err))
				continue
			}
			candles.Seed(sym, seed)
		}
	}

	a.News = risk.NewNewsFilter()
	riskMgr := risk.NewManager(autoCfg, a.News, a.Logger)
	if st, err := a.Store.LoadRiskState(ctx); err == nil {
		riskMgr.Restore(st)
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.Logger.Warn("failed to load risk state", zap.Error(err))
	}

	logs := tradelog.NewRing(tradelog.DefaultCapacity)
	if entries, err := a.Store.LoadLogs(ctx); err == nil {
		logs.Restore(entries)
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.Logger.Warn("failed to load trade log", zap.Error(err))
	}

	var notifier engine.Notifier = notify.Nop{}
	if a.JS != nil {
		notifier = notify.NewNATSNotifier(a.JS, a.Logger)
	}

	a.Pool = engine.NewWorkerPool(intentWorkers, intentQueueSize, a.Paper, a.Logger)
	a.Engine = engine.New(autoCfg, engine.Deps{
		Store:    a.Paper,
		Account:  a.Paper,
		Executor: a.Pool,
		Notifier: notifier,
		Risk:     riskMgr,
		Logs:     logs,
		Candles:  candles,
	}, a.Logger)

	if err := a.initFeed(autoCfg.Pairs); err != nil {
		return err
	}
	if a.JS != nil {
		a.PushGateway = push.NewGateway(a.JS, a.Config.AllowedOrigins(), a.Logger)
	}
	return nil
}

// loadAutoTraderConfig restores the persisted config. A missing or invalid
// one falls back to the defaults, with PAIRS applied when set.
func (a *App) loadAutoTraderConfig(ctx context.Context) model.AutoTraderConfig {
	cfg, err := a.Store.LoadConfig(ctx)
	if err == nil {
		verr := cfg.Validate()
		if verr == nil {
			return cfg
		}
		a.Logger.Warn("stored config is invalid, using defaults", zap.Error(verr))
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.Logger.Warn("failed to load config, using defaults", zap.Error(err))
	}

	cfg = model.DefaultAutoTraderConfig()
	if pairs := a.Config.Pairs(); len(pairs) > 0 {
		cfg.Pairs = pairs
	}
	for i, p := range cfg.Pairs {
		cfg.Pairs[i] = model.NormalizeSymbol(p)
	}
	return cfg
}

func (a *App) initFeed(pairs []string) error {
	switch a.Config.FeedSource {
	case config.FeedNATS:
		if a.JS == nil {
			return fmt.Errorf("feed source %q requires ENABLE_NATS", config.FeedNATS)
		}
		a.Feed = feed.NewNATSFeed(a.JS, a.Logger)
		if a.Config.QuoteStreamURL != "" {
			a.QuoteStream = connector.NewQuoteStream(a.Logger, a.Config.QuoteStreamURL, a.JS)
		}
	case config.FeedSim, "":
		a.Feed = feed.NewSimulator(simPairs(pairs), time.Now().UnixNano(), simStepPips)
	default:
		return fmt.Errorf("unknown feed source %q", a.Config.FeedSource)
	}
	a.Logger.Info("price feed ready", zap.String("source", a.Config.FeedSource))
	return nil
}

// simPairs covers the default universe plus any configured extras so a later
// config change still has prices.
func simPairs(pairs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(append([]string(nil), model.DefaultPairs...), pairs...) {
		sym := model.NormalizeSymbol(p)
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Pool.Start(ctx)

	if nf, ok := a.Feed.(*feed.NATSFeed); ok {
		if err := nf.Start(); err != nil {
			return fmt.Errorf("failed to start quote feed: %w", err)
		}
		defer nf.Stop()
	}
	if a.QuoteStream != nil {
		a.goRun(func() { a.QuoteStream.Run(ctx) })
	}

	// Start Persistence Service
	a.startPersistenceService(ctx)

	// Start Tick Loop
	a.goRun(func() { a.runTickLoop(ctx, a.Config.TickInterval()) })

	// Setup HTTP Server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown(cancel)
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown(cancel context.CancelFunc) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	var errs []error
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}

	cancel()
	a.wg.Wait()
	if err := a.persist(ctx); err != nil {
		errs = append(errs, err)
	}

	if a.NC != nil {
		a.NC.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	return errors.Join(errs...)
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if origins := a.Config.AllowedOrigins(); len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	deps := api.Deps{
		Engine:      a.Engine,
		Paper:       a.Paper,
		Store:       a.Store,
		Performance: a.Performance,
		News:        a.News,
		Auth: api.Auth{
			User:         a.Config.AdminUser,
			PasswordHash: a.Config.AdminPasswordHash,
			Secret:       a.Config.JWTSecret,
		},
	}
	if a.TradeSaver != nil {
		deps.History = a.TradeSaver
	}
	if a.Loader != nil {
		deps.Loader = a.Loader
	}
	api.NewHandler(deps, a.Logger).Register(r)

	r.GET("/ws", func(c *gin.Context) {
		if a.PushGateway == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates require NATS"})
			return
		}
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
