package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestReport 回测结果报告
type BacktestReport struct {
	Symbol         string           `json:"symbol"`
	Candles        int              `json:"candles"`
	TotalTrades    int              `json:"total_trades"`
	Wins           int              `json:"wins"`
	Losses         int              `json:"losses"`
	WinRate        float64          `json:"win_rate"`
	TotalReturn    decimal.Decimal  `json:"total_return"`
	TotalProfit    decimal.Decimal  `json:"total_profit"`
	MaxDrawdown    float64          `json:"max_drawdown"`
	SharpRatio     float64          `json:"sharp_ratio"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	FinalBalance   decimal.Decimal  `json:"final_balance"`
	TradesLog      []SimulatedTrade `json:"trades_log"`
	ExitReasons    map[string]int   `json:"exit_reasons"`
}

// SimulatedTrade 回测中的单笔交易记录
type SimulatedTrade struct {
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Volume    decimal.Decimal `json:"volume"`
	Entry     decimal.Decimal `json:"entry"`
	Exit      decimal.Decimal `json:"exit"`
	PnL       decimal.Decimal `json:"pnl"`
	Reason    string          `json:"reason"`
}
