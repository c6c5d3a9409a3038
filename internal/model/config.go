package model

import (
	"errors"
	"fmt"
	"time"
)

// AutoTraderConfig is the autotrader's persisted configuration. It is
// immutable during a tick and replaced wholesale on update.
type AutoTraderConfig struct {
	Enabled           bool                    `json:"enabled"`
	Pairs             []string                `json:"pairs"`
	Risk              RiskLimits              `json:"risk"`
	Entry             EntryConfig             `json:"entry"`
	Trailing          TrailingConfig          `json:"trailing"`
	ReEntry           ReEntryConfig           `json:"reentry"`
	Martingale        MartingaleConfig        `json:"martingale"`
	Session           SessionConfig           `json:"session"`
	Strategies        StrategySelection       `json:"strategies"`
	SmartCashOut      SmartCashOutConfig      `json:"smart_cash_out"`
	SmartLossRecovery SmartLossRecoveryConfig `json:"smart_loss_recovery"`
	News              NewsFilterConfig        `json:"news"`
	Adaptive          AdaptiveConfig          `json:"adaptive"`
	RiskScaling       RiskScalingConfig       `json:"risk_scaling"`
	PartialClose      PartialCloseConfig      `json:"partial_close"`
}

// RiskLimits bounds sizing and the daily gates.
type RiskLimits struct {
	RiskPercent          float64 `json:"risk_percent"`
	MaxOpenTrades        int     `json:"max_open_trades"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDrawdownPercent   float64 `json:"max_drawdown_percent"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"` // 0 disables
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`   // 0 disables
	DailyProfitTarget    float64 `json:"daily_profit_target"`    // 0 disables
	VolatilityAdjust     bool    `json:"volatility_adjust"`
	ATRMultiplier        float64 `json:"atr_multiplier"`
	MaxLotSize           float64 `json:"max_lot_size"` // 0 uses the symbol maximum
}

// EntryConfig controls the distances and pacing of new entries.
type EntryConfig struct {
	TakeProfitPips     float64 `json:"take_profit_pips"`
	StopLossPips       float64 `json:"stop_loss_pips"`
	NormalCooldownMs   int64   `json:"normal_cooldown_ms"`
	ManualConfirmBelow float64 `json:"manual_confirm_below"` // 0 disables parking
	PendingSignalTTLMs int64   `json:"pending_signal_ttl_ms"`
	MaxSpreadPips      float64 `json:"max_spread_pips"` // 0 disables
}

// TrailingConfig controls the trailing stop.
type TrailingConfig struct {
	Enabled      bool    `json:"enabled"`
	StartPips    float64 `json:"start_pips"`
	DistancePips float64 `json:"distance_pips"`
}

// ReEntryConfig controls quick re-entry after profitable exits.
type ReEntryConfig struct {
	Enabled    bool  `json:"enabled"`
	CooldownMs int64 `json:"cooldown_ms"`
	WindowMs   int64 `json:"window_ms"`
}

// MartingaleConfig scales risk after consecutive losses.
type MartingaleConfig struct {
	Enabled    bool    `json:"enabled"`
	Multiplier float64 `json:"multiplier"`
	MaxSteps   int     `json:"max_steps"`
}

// SessionConfig restricts trading to local hours [StartHour, EndHour).
type SessionConfig struct {
	Enabled             bool `json:"enabled"`
	StartHour           int  `json:"start_hour"`
	EndHour             int  `json:"end_hour"`
	MaxTradesPerSession int  `json:"max_trades_per_session"` // 0 disables
}

// StrategySettings toggles one detector.
type StrategySettings struct {
	Name          string  `json:"name"`
	Enabled       bool    `json:"enabled"`
	Weight        float64 `json:"weight"`
	MinConfidence float64 `json:"min_confidence"`
}

// StrategySelection lists the detectors and the global confidence floor.
type StrategySelection struct {
	Items         []StrategySettings `json:"items"`
	MinConfidence float64            `json:"min_confidence"`
}

// SmartCashOutConfig banks profit on a retrace the analyzer expects to continue.
type SmartCashOutConfig struct {
	Enabled        bool    `json:"enabled"`
	MinProfit      float64 `json:"min_profit"`
	RetracePercent float64 `json:"retrace_percent"`
	Confidence     float64 `json:"confidence"`
}

// SmartLossRecoveryConfig moves a hit stop to breakeven when a rebound is likely.
type SmartLossRecoveryConfig struct {
	Enabled        bool    `json:"enabled"`
	MaxLossPercent float64 `json:"max_loss_percent"`
	Confidence     float64 `json:"confidence"`
}

// NewsFilterConfig configures the news and weekend-edge blackout.
type NewsFilterConfig struct {
	Enabled            bool `json:"enabled"`
	AvoidFridayEvening bool `json:"avoid_friday_evening"`
	AvoidMondayMorning bool `json:"avoid_monday_morning"`
	MinutesBefore      int  `json:"minutes_before"`
	MinutesAfter       int  `json:"minutes_after"`
}

// AdaptiveConfig raises the confidence bar during losing streaks.
type AdaptiveConfig struct {
	Enabled               bool    `json:"enabled"`
	ConfidenceStepPerLoss float64 `json:"confidence_step_per_loss"`
	MaxRequiredConfidence float64 `json:"max_required_confidence"`
}

// RiskScalingConfig moves the risk percent after each result: up by
// WinMultiplier after a win, down by LossMultiplier after a loss, always
// within [MinRiskPercent, MaxRiskPercent].
type RiskScalingConfig struct {
	Enabled        bool    `json:"enabled"`
	WinMultiplier  float64 `json:"win_multiplier"`
	LossMultiplier float64 `json:"loss_multiplier"`
	MinRiskPercent float64 `json:"min_risk_percent"`
	MaxRiskPercent float64 `json:"max_risk_percent"`
}

// PartialCloseConfig takes Percent of a position off once it is AtProfitPips
// in profit. Each position is reduced at most once.
type PartialCloseConfig struct {
	Enabled      bool    `json:"enabled"`
	AtProfitPips float64 `json:"at_profit_pips"`
	Percent      float64 `json:"percent"`
}

// Strategy names understood by the detector factory.
const (
	StrategyTrend         = "trend"
	StrategyMeanReversion = "mean_reversion"
	StrategyBreakout      = "breakout"
	StrategyMomentum      = "momentum"
)

// DefaultAutoTraderConfig returns the configuration used when nothing is stored.
func DefaultAutoTraderConfig() AutoTraderConfig {
	return AutoTraderConfig{
		Enabled: false,
		Pairs:   append([]string(nil), DefaultPairs...),
		Risk: RiskLimits{
			RiskPercent:          1.0,
			MaxOpenTrades:        3,
			MaxDailyLoss:         500,
			MaxDrawdownPercent:   10,
			MaxConsecutiveLosses: 0,
			MaxConsecutiveWins:   0,
			DailyProfitTarget:    0,
			VolatilityAdjust:     false,
			ATRMultiplier:        1.5,
		},
		Entry: EntryConfig{
			TakeProfitPips:     30,
			StopLossPips:       15,
			NormalCooldownMs:   30_000,
			ManualConfirmBelow: 0,
			PendingSignalTTLMs: 120_000,
			MaxSpreadPips:      3,
		},
		Trailing: TrailingConfig{
			Enabled:      true,
			StartPips:    10,
			DistancePips: 8,
		},
		ReEntry: ReEntryConfig{
			Enabled:    true,
			CooldownMs: 3_000,
			WindowMs:   60_000,
		},
		Martingale: MartingaleConfig{
			Enabled:    false,
			Multiplier: 2,
			MaxSteps:   3,
		},
		Session: SessionConfig{
			Enabled:             false,
			StartHour:           8,
			EndHour:             20,
			MaxTradesPerSession: 20,
		},
		Strategies: StrategySelection{
			Items: []StrategySettings{
				{Name: StrategyTrend, Enabled: true, Weight: 25, MinConfidence: 60},
				{Name: StrategyMeanReversion, Enabled: true, Weight: 25, MinConfidence: 60},
				{Name: StrategyBreakout, Enabled: true, Weight: 25, MinConfidence: 60},
				{Name: StrategyMomentum, Enabled: true, Weight: 25, MinConfidence: 60},
			},
			MinConfidence: 65,
		},
		SmartCashOut: SmartCashOutConfig{
			Enabled:        true,
			MinProfit:      5,
			RetracePercent: 30,
			Confidence:     65,
		},
		SmartLossRecovery: SmartLossRecoveryConfig{
			Enabled:        false,
			MaxLossPercent: 120,
			Confidence:     70,
		},
		News: NewsFilterConfig{
			Enabled:            false,
			AvoidFridayEvening: true,
			AvoidMondayMorning: true,
			MinutesBefore:      30,
			MinutesAfter:       30,
		},
		Adaptive: AdaptiveConfig{
			Enabled:               false,
			ConfidenceStepPerLoss: 5,
			MaxRequiredConfidence: 95,
		},
		RiskScaling: RiskScalingConfig{
			Enabled:        false,
			WinMultiplier:  1.2,
			LossMultiplier: 0.5,
			MinRiskPercent: 0.5,
			MaxRiskPercent: 3,
		},
		PartialClose: PartialCloseConfig{
			Enabled:      false,
			AtProfitPips: 2,
			Percent:      50,
		},
	}
}

// Validate rejects configurations the engine cannot act on.
func (c AutoTraderConfig) Validate() error {
	var errs []error
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 100 {
		errs = append(errs, fmt.Errorf("risk_percent must be in (0,100], got %v", c.Risk.RiskPercent))
	}
	if c.Risk.MaxOpenTrades <= 0 {
		errs = append(errs, fmt.Errorf("max_open_trades must be positive, got %d", c.Risk.MaxOpenTrades))
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDrawdownPercent < 0 {
		errs = append(errs, errors.New("loss limits must not be negative"))
	}
	if c.Risk.MaxConsecutiveLosses < 0 || c.Risk.MaxConsecutiveWins < 0 {
		errs = append(errs, errors.New("streak limits must not be negative"))
	}
	if c.Entry.StopLossPips <= 0 || c.Entry.TakeProfitPips <= 0 {
		errs = append(errs, errors.New("stop_loss_pips and take_profit_pips must be positive"))
	}
	if c.Entry.MaxSpreadPips < 0 {
		errs = append(errs, fmt.Errorf("max_spread_pips must not be negative, got %v", c.Entry.MaxSpreadPips))
	}
	if c.Trailing.Enabled && c.Trailing.DistancePips <= 0 {
		errs = append(errs, errors.New("trailing distance_pips must be positive when trailing is enabled"))
	}
	if c.Martingale.Enabled && (c.Martingale.Multiplier < 1 || c.Martingale.MaxSteps < 0) {
		errs = append(errs, errors.New("martingale multiplier must be >= 1 and max_steps >= 0"))
	}
	if c.Session.StartHour < 0 || c.Session.StartHour > 23 || c.Session.EndHour < 0 || c.Session.EndHour > 24 {
		errs = append(errs, errors.New("session hours must be within 0..24"))
	}
	if rs := c.RiskScaling; rs.Enabled {
		if rs.MinRiskPercent <= 0 || rs.MinRiskPercent > rs.MaxRiskPercent || rs.MaxRiskPercent > 100 {
			errs = append(errs, errors.New("risk_scaling bounds must satisfy 0 < min_risk_percent <= max_risk_percent <= 100"))
		}
		if rs.WinMultiplier < 1 || rs.LossMultiplier <= 0 || rs.LossMultiplier > 1 {
			errs = append(errs, errors.New("risk_scaling win_multiplier must be >= 1 and loss_multiplier in (0,1]"))
		}
	}
	if pc := c.PartialClose; pc.Enabled && (pc.AtProfitPips <= 0 || pc.Percent <= 0 || pc.Percent >= 100) {
		errs = append(errs, errors.New("partial_close needs at_profit_pips > 0 and percent in (0,100)"))
	}
	for _, s := range c.Strategies.Items {
		if s.MinConfidence < 0 || s.MinConfidence > 100 {
			errs = append(errs, fmt.Errorf("strategy %s min_confidence must be in [0,100]", s.Name))
		}
	}
	return errors.Join(errs...)
}

// Cooldown helpers convert the stored millisecond values.
func (e EntryConfig) NormalCooldown() time.Duration {
	return time.Duration(e.NormalCooldownMs) * time.Millisecond
}

func (e EntryConfig) PendingSignalTTL() time.Duration {
	return time.Duration(e.PendingSignalTTLMs) * time.Millisecond
}

func (r ReEntryConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownMs) * time.Millisecond
}

func (r ReEntryConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}
