package risk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fx-autotrader/internal/model"
)

const ImpactHigh = "High"

// NewsEvent is one economic calendar entry.
type NewsEvent struct {
	Title    string    `json:"title"`
	Currency string    `json:"currency"`
	Impact   string    `json:"impact"`
	Time     time.Time `json:"time"`
}

// NewsFilter blocks entries around the weekend edges and around high-impact
// calendar events. Without events loaded only the weekend rules apply; a nil
// filter always passes.
type NewsFilter struct {
	mu     sync.RWMutex
	events []NewsEvent
}

func NewNewsFilter() *NewsFilter {
	return &NewsFilter{}
}

// SetEvents replaces the calendar.
func (f *NewsFilter) SetEvents(events []NewsEvent) {
	sorted := append([]NewsEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	f.mu.Lock()
	f.events = sorted
	f.mu.Unlock()
}

func (f *NewsFilter) Events() []NewsEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]NewsEvent(nil), f.events...)
}

// Check reports whether trading is allowed at now.
func (f *NewsFilter) Check(now time.Time, cfg model.NewsFilterConfig) (bool, string) {
	if f == nil || !cfg.Enabled {
		return true, ""
	}

	if cfg.AvoidFridayEvening && now.Weekday() == time.Friday && now.Hour() >= 16 {
		return false, "Friday evening - no trading"
	}
	if cfg.AvoidMondayMorning && now.Weekday() == time.Monday && now.Hour() < 8 {
		return false, "Monday morning - no trading"
	}

	before := time.Duration(cfg.MinutesBefore) * time.Minute
	after := time.Duration(cfg.MinutesAfter) * time.Minute

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ev := range f.events {
		if !strings.EqualFold(ev.Impact, ImpactHigh) {
			continue
		}
		if !now.Before(ev.Time.Add(-before)) && !now.After(ev.Time.Add(after)) {
			return false, fmt.Sprintf("High impact news: %s", ev.Title)
		}
	}
	return true, ""
}
