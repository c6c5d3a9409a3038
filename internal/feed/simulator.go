package feed

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"fx-autotrader/internal/model"
)

var basePrices = map[string]float64{
	"EURUSD": 1.0850,
	"GBPUSD": 1.2650,
	"USDJPY": 150.20,
	"AUDUSD": 0.6550,
	"USDCAD": 1.3650,
	"USDCHF": 0.8850,
	"NZDUSD": 0.6050,
	"EURJPY": 162.80,
	"GBPJPY": 190.00,
	"XAUUSD": 2350.0,
	"XAGUSD": 28.50,
}

// Simulator produces random-walk quotes for a fixed pair universe. Each
// Snapshot advances every pair by one step.
type Simulator struct {
	mu       sync.Mutex
	pairs    []string
	rng      *rand.Rand
	now      func() time.Time
	stepPips float64
	state    map[string]*simPair
}

type simPair struct {
	mid    float64
	open   float64
	high   float64
	low    float64
	volume int64
}

// NewSimulator starts every pair at its reference price. stepPips is the
// standard deviation of one step.
func NewSimulator(pairs []string, seed int64, stepPips float64) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
		stepPips: stepPips,
		state:    make(map[string]*simPair),
	}
	for _, p := range pairs {
		sym := model.NormalizeSymbol(p)
		mid, ok := basePrices[sym]
		if !ok {
			mid = 1.0
		}
		s.pairs = append(s.pairs, sym)
		s.state[sym] = &simPair{mid: mid, open: mid, high: mid, low: mid}
	}
	return s
}

func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Simulator) Snapshot(context.Context) ([]model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]model.Quote, 0, len(s.pairs))
	for _, sym := range s.pairs {
		st := s.state[sym]
		pip := model.SpecFor(sym).PipSize
		st.mid = math.Max(st.mid+s.rng.NormFloat64()*s.stepPips*pip, pip)
		st.high = math.Max(st.high, st.mid)
		st.low = math.Min(st.low, st.mid)
		st.volume++

		half := spreadPips(sym) * pip / 2
		change := st.mid - st.open
		out = append(out, model.Quote{
			Symbol:        sym,
			Bid:           round(st.mid-half, pip),
			Ask:           round(st.mid+half, pip),
			High:          st.high,
			Low:           st.low,
			Change:        change,
			ChangePercent: change / st.open * 100,
			TickVolume:    st.volume,
			TickTime:      now,
		})
	}
	return out, nil
}

func spreadPips(symbol string) float64 {
	switch {
	case symbol == "XAUUSD":
		return 0.3
	case symbol == "XAGUSD":
		return 2
	case strings.Contains(symbol, "JPY"):
		return 1.5
	default:
		return 1.2
	}
}

// round keeps a tenth of a pip, the usual fractional quote precision.
func round(price, pip float64) float64 {
	step := pip / 10
	return math.Round(price/step) * step
}
