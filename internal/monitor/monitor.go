// Package monitor runs the periodic evaluation loop: load the watchlist,
// fetch current prices, run the threshold engine, persist the updated state
// and forward alerts to the notifier.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/threshold"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
)

// PriceSource supplies current USD prices for a set of coin IDs. The
// returned map may omit IDs that could not be priced.
type PriceSource interface {
	QuotesLatest(ids []int64) (map[int64]float64, error)
}

// Notifier delivers a rendered alert message. Failures are logged and
// swallowed; a failed delivery never rolls back persisted state.
type Notifier interface {
	Send(text string) error
}

// Metrics holds the counters the monitor maintains. Any field may be nil.
type Metrics struct {
	TicksCompleted prometheus.Counter
	AlertsSent     *prometheus.CounterVec // labeled by alert kind
	WatchedAssets  prometheus.Gauge
}

// Monitor owns the evaluation loop.
type Monitor struct {
	store    *watchlist.Store
	prices   PriceSource
	notifier Notifier
	interval time.Duration
	metrics  *Metrics
}

func New(store *watchlist.Store, prices PriceSource, notifier Notifier, interval time.Duration, metrics *Metrics) *Monitor {
	return &Monitor{
		store:    store,
		prices:   prices,
		notifier: notifier,
		interval: interval,
		metrics:  metrics,
	}
}

// Start launches the evaluation loop in a goroutine. A failed or panicking
// tick is logged and the loop keeps ticking; it stops only when ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.runTick()
		for {
			select {
			case <-ctx.Done():
				log.Info("price monitor stopped")
				return
			case <-ticker.C:
				m.runTick()
			}
		}
	}()
	log.Infof("price monitor started (interval: %v)", m.interval)
}

func (m *Monitor) runTick() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in price monitor tick: %v", r)
		}
	}()

	if _, err := m.Tick(time.Now()); err != nil {
		log.Errorf("evaluation tick failed: %v", err)
	}
}

// Tick runs one evaluation cycle. The load-evaluate-save sequence executes
// as a single atomic unit under the store lock, so adds and removes from the
// command surface can never be overwritten by a concurrent tick. When the
// price fetch fails the tick is abandoned with the persisted state untouched.
func (m *Monitor) Tick(now time.Time) ([]types.Alert, error) {
	var res threshold.Result
	evaluated := false

	err := m.store.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		if m.metrics != nil && m.metrics.WatchedAssets != nil {
			m.metrics.WatchedAssets.Set(float64(len(watch)))
		}
		if len(watch) == 0 {
			return watch, false, nil
		}

		ids := make([]int64, 0, len(watch))
		for id := range watch {
			ids = append(ids, id)
		}
		prices, err := m.prices.QuotesLatest(ids)
		if err != nil {
			return watch, false, err
		}

		res = threshold.Evaluate(prices, watch, now)
		evaluated = true
		return res.State, res.Changed, nil
	})
	if err != nil {
		return nil, err
	}
	if !evaluated {
		log.Debug("no coins in watchlist")
		return nil, nil
	}

	m.logTick(res)
	m.notify(res.Alerts)

	if m.metrics != nil && m.metrics.TicksCompleted != nil {
		m.metrics.TicksCompleted.Inc()
	}
	return res.Alerts, nil
}

func (m *Monitor) notify(alerts []types.Alert) {
	for _, alert := range alerts {
		if err := m.notifier.Send(RenderAlert(alert)); err != nil {
			log.Errorf("failed to send notification for %s: %v", alert.Symbol, err)
			continue
		}
		if m.metrics != nil && m.metrics.AlertsSent != nil {
			m.metrics.AlertsSent.WithLabelValues(string(alert.Kind)).Inc()
		}
	}
}

func (m *Monitor) logTick(res threshold.Result) {
	for _, init := range res.Initialized {
		log.Infof("initialized price data for %s (ID: %d) at $%.4f", init.Symbol, init.AssetID, init.Price)
	}
	for _, skip := range res.Skipped {
		log.Warnf("skipping %s (ID: %d): %s", skip.Symbol, skip.AssetID, skip.Reason)
	}

	log.Infof("short-term matches: %s", matchSummary(res.Alerts, types.AlertShortTerm))
	log.Infof("long-term matches: %s", matchSummary(res.Alerts, types.AlertLongTerm))
	log.Infof("absolute matches: %s", matchSummary(res.Alerts, types.AlertAbsolute))

	if len(res.Suppressed) > 0 {
		symbols := make([]string, len(res.Suppressed))
		for i, alert := range res.Suppressed {
			symbols[i] = alert.Symbol
		}
		log.Infof("ignoring absolute notifications due to short-term overlap: %s", strings.Join(symbols, ", "))
	}
}

func matchSummary(alerts []types.Alert, kind types.AlertKind) string {
	var parts []string
	for _, alert := range alerts {
		if alert.Kind == kind {
			parts = append(parts, fmt.Sprintf("%s(%.1f%%)", alert.Symbol, abs(alert.ChangePercent)))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
