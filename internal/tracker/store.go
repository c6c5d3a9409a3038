// Package tracker keeps the engine's working view of each open position:
// the live stop and target, the trailing peak and the smart-exit bookkeeping.
package tracker

import (
	"sort"
	"sync"
	"time"

	"fx-autotrader/internal/model"
)

// Entry is the mutable state for one open position. The stop and target here
// are the working levels; the position store only knows the levels at open.
type Entry struct {
	PositionID  string     `json:"position_id"`
	Symbol      string     `json:"symbol"`
	Side        model.Side `json:"side"`
	EntryPrice  float64    `json:"entry_price"`
	Volume      float64    `json:"volume"`
	StopLoss    float64    `json:"stop_loss"`
	TakeProfit  float64    `json:"take_profit"`
	InitialStop float64    `json:"initial_stop"`
	OpenedAt    time.Time  `json:"opened_at"`

	// smart cash-out
	PeakProfit      float64 `json:"peak_profit"`
	PeakProfitPrice float64 `json:"peak_profit_price"`

	// Trailing is set once the trailing stop has moved the stop.
	Trailing bool `json:"trailing"`

	// RecoveryUsed marks a position whose hit stop was already moved to
	// breakeven once. Until price trades back through the entry, only a
	// move beyond RecoveryFloor closes it.
	RecoveryUsed  bool    `json:"recovery_used"`
	RecoveryFloor float64 `json:"recovery_floor,omitempty"`

	PartialClosed bool `json:"partial_closed"`
}

// Levels are the distances, in price units, used when a position shows up
// without a tracker.
type Levels struct {
	StopDistance   float64
	TargetDistance float64
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	peaks   map[string]float64
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
		peaks:   make(map[string]float64),
	}
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Ensure returns the entry for pos, creating it from the position's recorded
// levels (or from fallback distances when it has none).
func (s *Store) Ensure(pos model.Position, fallback Levels) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[pos.ID]; ok {
		return e
	}

	dir := pos.Side.Direction()
	sl := pos.StopLoss
	if sl == 0 {
		sl = pos.OpenPrice - dir*fallback.StopDistance
	}
	tp := pos.TakeProfit
	if tp == 0 {
		tp = pos.OpenPrice + dir*fallback.TargetDistance
	}
	e := Entry{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.OpenPrice,
		Volume:      pos.Volume,
		StopLoss:    sl,
		TakeProfit:  tp,
		InitialStop: sl,
		OpenedAt:    pos.OpenTime,
	}
	s.entries[pos.ID] = e
	return e
}

func (s *Store) Put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.PositionID] = e
}

// Delete drops the entry and its trailing peak. It reports whether an entry existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	delete(s.peaks, id)
	return ok
}

// Peak is the best favourable price seen by the trailing stop.
func (s *Store) Peak(id string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peaks[id]
	return p, ok
}

func (s *Store) SetPeak(id string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peaks[id] = price
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HasSymbol reports whether any tracked position is on symbol.
func (s *Store) HasSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Symbol == symbol {
			return true
		}
	}
	return false
}

// IDs returns the tracked position ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies every entry, ordered by id.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}
