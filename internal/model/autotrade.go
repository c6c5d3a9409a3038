package model

import "time"

// Side is a trade direction. SideNone is only used by signals.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideNone Side = "NONE"
)

// Opposite returns the reverse direction; NONE stays NONE.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// Direction is +1 for BUY, -1 for SELL and 0 otherwise.
func (s Side) Direction() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Signal is a detector or aggregator verdict.
type Signal struct {
	Symbol     string  `json:"symbol,omitempty"`
	Side       Side    `json:"signal"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// NoSignal returns a NONE signal carrying an explanation.
func NoSignal(reason string) Signal {
	return Signal{Side: SideNone, Confidence: 0, Reason: reason}
}

// IsActionable reports whether the signal points in a tradable direction.
func (s Signal) IsActionable() bool {
	return s.Side == SideBuy || s.Side == SideSell
}

// Position is an open trade as seen by the position store. CurrentPrice and
// Profit are refreshed externally; StopLoss/TakeProfit are the levels recorded
// at creation, not the working levels the tracker maintains.
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	Profit       float64   `json:"profit"`
	OpenTime     time.Time `json:"open_time"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
}

// LogAction classifies autotrade log entries.
type LogAction string

const (
	ActionOpen         LogAction = "OPEN"
	ActionClose        LogAction = "CLOSE"
	ActionSLHit        LogAction = "SL_HIT"
	ActionTPHit        LogAction = "TP_HIT"
	ActionTrailing     LogAction = "TRAILING"
	ActionRiskBlock    LogAction = "RISK_BLOCK"
	ActionManualClose  LogAction = "MANUAL_CLOSE"
	ActionQuickReentry LogAction = "QUICK_REENTRY"
	ActionSignal       LogAction = "SIGNAL"
)

// LogEntry is one line of the autotrade journal.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    LogAction `json:"action"`
	Symbol    string    `json:"symbol,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Profit    *float64  `json:"profit,omitempty"`
	Reason    string    `json:"reason"`
}

// DailyStats is the risk manager's cross-tick state; it resets on a new date.
type DailyStats struct {
	Date              string  `json:"date"`
	TradeCount        int     `json:"trade_count"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	Profit            float64 `json:"profit"`
	PeakEquity        float64 `json:"peak_equity"`
	CurrentEquity     float64 `json:"current_equity"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	SessionTrades     int     `json:"session_trades"`
	MartingaleStep    int     `json:"martingale_step"`
	LastOutcome       string  `json:"last_outcome,omitempty"` // "win" | "loss"
	RiskPercent       float64 `json:"risk_percent,omitempty"` // scaled risk; 0 uses the configured value
}

// ClosedTrade is a realized trade as recorded by the broker and trade history.
type ClosedTrade struct {
	PositionID string    `json:"position_id" db:"position_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       Side      `json:"side" db:"side"`
	Volume     float64   `json:"volume" db:"volume"`
	OpenPrice  float64   `json:"open_price" db:"open_price"`
	ClosePrice float64   `json:"close_price" db:"close_price"`
	Profit     float64   `json:"profit" db:"profit"`
	Reason     string    `json:"reason" db:"reason"`
	OpenTime   time.Time `json:"open_time" db:"open_time"`
	CloseTime  time.Time `json:"close_time" db:"close_time"`
}
