// Package threshold implements the watchlist evaluation engine. It is pure
// decision logic: given current prices and the persisted watch state it
// decides which alerts fire and returns the state to persist. All I/O stays
// with the caller.
package threshold

import (
	"math"
	"time"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
)

// Rule pairs a percent magnitude with the maximum elapsed time since the
// channel's last notification. A zero Window means no time limit.
type Rule struct {
	Percent float64
	Window  time.Duration
}

// The rule tables are scanned in declared order and the first match wins.
// Declared order happens to be ascending magnitude, but the contract is
// "first in list", not "smallest sufficient" — do not reorder.
var (
	ShortTermRules = []Rule{
		{Percent: 0.2, Window: 2 * time.Minute},
		{Percent: 0.5, Window: 5 * time.Minute},
		{Percent: 1.0, Window: 10 * time.Minute},
		{Percent: 2.0, Window: 30 * time.Minute},
	}

	LongTermRules = []Rule{
		{Percent: 3.0, Window: 60 * time.Minute},
		{Percent: 5.0, Window: 360 * time.Minute},
		{Percent: 8.0, Window: 720 * time.Minute},
		{Percent: 12.0, Window: 1440 * time.Minute},
		{Percent: 15.0, Window: 0},
	}
)

// AbsolutePercent is the time-independent change threshold, measured against
// the short-term baseline.
const AbsolutePercent = 2.0

// SkipReason explains why an asset was left untouched during a tick.
type SkipReason string

const (
	SkipNoPrice      SkipReason = "no price data"
	SkipZeroBaseline SkipReason = "zero baseline"
)

// Skip records one asset passed over this tick.
type Skip struct {
	AssetID int64
	Symbol  string
	Reason  SkipReason
}

// InitEvent records an asset whose baselines were seeded this tick. It is
// diagnostic only and never becomes an alert.
type InitEvent struct {
	AssetID int64
	Symbol  string
	Price   float64
}

// Result is the outcome of one evaluation tick.
type Result struct {
	Alerts      []types.Alert
	Initialized []InitEvent
	Skipped     []Skip
	// Suppressed holds absolute candidates dropped because a short-term
	// alert already fired for the same asset.
	Suppressed []types.Alert
	State      map[int64]types.WatchEntry
	Changed    bool
}

func matches(rule Rule, changePercent float64, elapsed time.Duration) bool {
	if math.Abs(changePercent) < rule.Percent {
		return false
	}
	return rule.Window == 0 || elapsed <= rule.Window
}

func newBaseline(price float64, now time.Time) types.Baseline {
	p := price
	return types.Baseline{LastPrice: &p, LastNotification: now}
}

// Evaluate runs one tick over every watched asset. Entries without a price
// this tick are carried over untouched; an error on one asset never affects
// the others. The returned state map is a fresh map whose entries may be
// mutated freely by the caller.
func Evaluate(prices map[int64]float64, watch map[int64]types.WatchEntry, now time.Time) Result {
	res := Result{State: make(map[int64]types.WatchEntry, len(watch))}

	var pendingAbsolute []types.Alert
	shortFired := make(map[int64]bool)

	for id, entry := range watch {
		price, ok := prices[id]
		if !ok {
			res.State[id] = entry
			res.Skipped = append(res.Skipped, Skip{AssetID: id, Symbol: entry.Symbol, Reason: SkipNoPrice})
			continue
		}

		// First price ever seen for this asset: seed both channels and
		// skip threshold checks until the next tick.
		if entry.ShortTerm.LastPrice == nil || entry.LongTerm.LastPrice == nil {
			entry.ShortTerm = newBaseline(price, now)
			entry.LongTerm = newBaseline(price, now)
			res.State[id] = entry
			res.Initialized = append(res.Initialized, InitEvent{AssetID: id, Symbol: entry.Symbol, Price: price})
			res.Changed = true
			continue
		}

		shortBase := *entry.ShortTerm.LastPrice
		longBase := *entry.LongTerm.LastPrice
		if shortBase == 0 || longBase == 0 {
			res.State[id] = entry
			res.Skipped = append(res.Skipped, Skip{AssetID: id, Symbol: entry.Symbol, Reason: SkipZeroBaseline})
			continue
		}

		shortChange := (price - shortBase) / shortBase * 100
		longChange := (price - longBase) / longBase * 100

		// The absolute check and the short-term table scan both read the
		// same unmodified short baseline; the candidate is held back until
		// all assets were scanned so overlaps can be resolved in one pass.
		if math.Abs(shortChange) >= AbsolutePercent {
			pendingAbsolute = append(pendingAbsolute, types.Alert{
				Kind:          types.AlertAbsolute,
				AssetID:       id,
				Name:          entry.Name,
				Symbol:        entry.Symbol,
				Price:         price,
				ChangePercent: shortChange,
			})
		}

		shortElapsed := now.Sub(entry.ShortTerm.LastNotification)
		for _, rule := range ShortTermRules {
			if !matches(rule, shortChange, shortElapsed) {
				continue
			}
			res.Alerts = append(res.Alerts, types.Alert{
				Kind:          types.AlertShortTerm,
				AssetID:       id,
				Name:          entry.Name,
				Symbol:        entry.Symbol,
				Price:         price,
				ChangePercent: shortChange,
				Elapsed:       shortElapsed,
				RulePercent:   rule.Percent,
				RuleWindow:    rule.Window,
			})
			shortFired[id] = true
			break
		}

		longElapsed := now.Sub(entry.LongTerm.LastNotification)
		for _, rule := range LongTermRules {
			if !matches(rule, longChange, longElapsed) {
				continue
			}
			res.Alerts = append(res.Alerts, types.Alert{
				Kind:          types.AlertLongTerm,
				AssetID:       id,
				Name:          entry.Name,
				Symbol:        entry.Symbol,
				Price:         price,
				ChangePercent: longChange,
				Elapsed:       longElapsed,
				RulePercent:   rule.Percent,
				RuleWindow:    rule.Window,
			})
			entry.LongTerm = newBaseline(price, now)
			res.Changed = true
			break
		}

		res.State[id] = entry
	}

	for _, candidate := range pendingAbsolute {
		if shortFired[candidate.AssetID] {
			res.Suppressed = append(res.Suppressed, candidate)
			continue
		}
		res.Alerts = append(res.Alerts, candidate)
	}

	// Any short-term-class alert resets the short baseline, no matter
	// whether the table or the absolute rule triggered it.
	for _, alert := range res.Alerts {
		if alert.Kind != types.AlertShortTerm && alert.Kind != types.AlertAbsolute {
			continue
		}
		entry := res.State[alert.AssetID]
		entry.ShortTerm = newBaseline(alert.Price, now)
		res.State[alert.AssetID] = entry
		res.Changed = true
	}

	return res
}
