package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autotrade_ticks_total",
		Help: "Total number of engine ticks processed",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autotrade_tick_duration_seconds",
		Help:    "Duration of one engine tick",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autotrade_trades_opened_total",
		Help: "Total number of positions opened by the autotrader",
	}, []string{"symbol", "side"})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autotrade_trades_closed_total",
		Help: "Total number of positions closed, by reason",
	}, []string{"reason"})

	RiskBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autotrade_risk_blocks_total",
		Help: "Total number of ticks where the risk manager denied entries",
	}, []string{"reason"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autotrade_open_positions",
		Help: "Number of positions tracked by the engine",
	})

	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autotrade_equity",
		Help: "Account equity seen on the last tick",
	})

	IntentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autotrade_intent_failures_total",
		Help: "Total number of open/close intents the broker rejected",
	}, []string{"kind"})

	QuoteIngestRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_ingest_total",
		Help: "Total number of quotes received from the stream",
	}, []string{"symbol"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	DBInsertRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_insert_total",
		Help: "Total number of records inserted into DB",
	}, []string{"table"})
)
