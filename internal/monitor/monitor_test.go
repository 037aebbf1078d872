package monitor

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
)

type fakePriceSource struct {
	prices map[int64]float64
	err    error
	calls  int
}

func (f *fakePriceSource) QuotesLatest(ids []int64) (map[int64]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Send(text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestStore(t *testing.T) *watchlist.Store {
	t.Helper()
	s, err := watchlist.New(filepath.Join(t.TempDir(), "watchlist.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func seedBaseline(t *testing.T, s *watchlist.Store, id int64, name, symbol string, price float64, at time.Time) {
	t.Helper()
	err := s.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		p := price
		q := price
		watch[id] = types.WatchEntry{
			Name:      name,
			Symbol:    symbol,
			ShortTerm: types.Baseline{LastPrice: &p, LastNotification: at},
			LongTerm:  types.Baseline{LastPrice: &q, LastNotification: at},
		}
		return watch, true, nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestTick_SendsAlertAndPersistsReset(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedBaseline(t, store, 1, "Bitcoin", "BTC", 100, now.Add(-time.Minute))

	source := &fakePriceSource{prices: map[int64]float64{1: 101}} // +1%
	notifier := &fakeNotifier{}
	m := New(store, source, notifier, time.Minute, nil)

	alerts, err := m.Tick(now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != types.AlertShortTerm {
		t.Fatalf("expected one short-term alert, got %+v", alerts)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0], "Bitcoin") || !strings.Contains(notifier.sent[0], "up by") {
		t.Errorf("unexpected message: %q", notifier.sent[0])
	}

	watch, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := *watch[1].ShortTerm.LastPrice; got != 101 {
		t.Errorf("short baseline not persisted: got %v, want 101", got)
	}
}

func TestTick_PriceSourceFailureLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedBaseline(t, store, 1, "Bitcoin", "BTC", 100, now.Add(-time.Minute))
	before, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	source := &fakePriceSource{err: errors.New("api unreachable")}
	notifier := &fakeNotifier{}
	m := New(store, source, notifier, time.Minute, nil)

	if _, err := m.Tick(now); err == nil {
		t.Fatal("expected an error when the price source fails")
	}
	if len(notifier.sent) != 0 {
		t.Errorf("no notifications may go out on a failed tick, got %d", len(notifier.sent))
	}

	after, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *after[1].ShortTerm.LastPrice != *before[1].ShortTerm.LastPrice ||
		!after[1].ShortTerm.LastNotification.Equal(before[1].ShortTerm.LastNotification) {
		t.Error("persisted state changed despite a failed tick")
	}
}

func TestTick_NotifierFailureDoesNotRollBackState(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedBaseline(t, store, 1, "Bitcoin", "BTC", 100, now.Add(-time.Minute))

	source := &fakePriceSource{prices: map[int64]float64{1: 103}}
	notifier := &fakeNotifier{err: errors.New("telegram down")}
	m := New(store, source, notifier, time.Minute, nil)

	if _, err := m.Tick(now); err != nil {
		t.Fatalf("Tick must not fail on notifier errors: %v", err)
	}

	watch, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := *watch[1].ShortTerm.LastPrice; got != 103 {
		t.Errorf("baseline reset must survive a failed delivery: got %v", got)
	}
}

func TestTick_EmptyWatchlistSkipsFetch(t *testing.T) {
	store := newTestStore(t)
	source := &fakePriceSource{}
	m := New(store, source, &fakeNotifier{}, time.Minute, nil)

	alerts, err := m.Tick(time.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if alerts != nil {
		t.Errorf("expected no alerts, got %+v", alerts)
	}
	if source.calls != 0 {
		t.Errorf("price source must not be queried for an empty watchlist, got %d calls", source.calls)
	}
}

func TestTick_InitializationEmitsNoNotification(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Add(types.Asset{ID: 2, Name: "Ethereum", Symbol: "ETH"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	source := &fakePriceSource{prices: map[int64]float64{2: 3000}}
	notifier := &fakeNotifier{}
	m := New(store, source, notifier, time.Minute, nil)

	alerts, err := m.Tick(time.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(alerts) != 0 || len(notifier.sent) != 0 {
		t.Fatalf("initialization must stay silent, got alerts=%d sent=%d", len(alerts), len(notifier.sent))
	}

	watch, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if watch[2].ShortTerm.LastPrice == nil || *watch[2].ShortTerm.LastPrice != 3000 {
		t.Errorf("baselines not initialized: %+v", watch[2])
	}
}

func TestRenderAlert(t *testing.T) {
	shortAlert := types.Alert{
		Kind:          types.AlertShortTerm,
		Name:          "Bitcoin",
		Symbol:        "BTC",
		Price:         65123.4,
		ChangePercent: 2.34,
		Elapsed:       5 * time.Minute,
	}
	text := RenderAlert(shortAlert)
	for _, want := range []string{"Bitcoin", "up by", "2\\.34%", "in 5 minutes", "65,123"} {
		if !strings.Contains(text, want) {
			t.Errorf("short-term message missing %q: %q", want, text)
		}
	}

	absAlert := types.Alert{
		Kind:          types.AlertAbsolute,
		Name:          "Ethereum",
		Symbol:        "ETH",
		Price:         2950.12,
		ChangePercent: -3.1,
	}
	text = RenderAlert(absAlert)
	if !strings.Contains(text, "down by") {
		t.Errorf("absolute message missing direction: %q", text)
	}
	if strings.Contains(text, " in ") {
		t.Errorf("absolute message must not carry an elapsed time: %q", text)
	}
}
