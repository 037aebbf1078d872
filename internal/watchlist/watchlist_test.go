package watchlist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "watchlist.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStore_CreatesEmptyDocument(t *testing.T) {
	s := newTestStore(t)

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("watchlist file not created: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("watchlist file is not valid JSON: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("expected empty document, got %d entries", len(doc))
	}
}

func TestStore_AddRemoveList(t *testing.T) {
	s := newTestStore(t)

	added, err := s.Add(types.Asset{ID: 1, Name: "Bitcoin", Symbol: "BTC"})
	if err != nil || !added {
		t.Fatalf("Add: added=%v err=%v", added, err)
	}
	added, err = s.Add(types.Asset{ID: 1, Name: "Bitcoin", Symbol: "BTC"})
	if err != nil || added {
		t.Fatalf("duplicate Add must be a no-op: added=%v err=%v", added, err)
	}
	if _, err := s.Add(types.Asset{ID: 1027, Name: "Ethereum", Symbol: "ETH"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	assets, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 2 || assets[0].ID != 1 || assets[1].ID != 1027 {
		t.Fatalf("expected [1 1027], got %+v", assets)
	}

	removed, err := s.Remove(1)
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	removed, err = s.Remove(1)
	if err != nil || removed {
		t.Fatalf("Remove of absent asset must report false without error: removed=%v err=%v", removed, err)
	}

	watch, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, exists := watch[1027]; !exists || len(watch) != 1 {
		t.Errorf("expected only asset 1027 to remain, got %+v", watch)
	}
}

func TestStore_AddInsertsNullBaselines(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(types.Asset{ID: 52, Name: "XRP", Symbol: "XRP"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	watch, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry := watch[52]
	if entry.ShortTerm.LastPrice != nil || entry.LongTerm.LastPrice != nil {
		t.Errorf("new entry must have null baselines, got %+v", entry)
	}
	if entry.ShortTerm.LastNotification.IsZero() {
		t.Error("new entry must carry the insertion time")
	}
}

func TestStore_RoundTripPreservesBaselines(t *testing.T) {
	s := newTestStore(t)
	price := 432.1
	at := time.Now().Round(time.Second) // RFC 3339 keeps sub-second only when present
	err := s.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		watch[99] = types.WatchEntry{
			Name:      "Testcoin",
			Symbol:    "TST",
			ShortTerm: types.Baseline{LastPrice: &price, LastNotification: at},
			LongTerm:  types.Baseline{LastPrice: &price, LastNotification: at.Add(-time.Hour)},
		}
		return watch, true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	watch, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry := watch[99]
	if entry.ShortTerm.LastPrice == nil || *entry.ShortTerm.LastPrice != price {
		t.Errorf("short baseline price did not round-trip: %+v", entry.ShortTerm)
	}
	if !entry.ShortTerm.LastNotification.Equal(at) {
		t.Errorf("short timestamp did not round-trip: got %v want %v", entry.ShortTerm.LastNotification, at)
	}
	if !entry.LongTerm.LastNotification.Equal(at.Add(-time.Hour)) {
		t.Errorf("long timestamp did not round-trip: got %v", entry.LongTerm.LastNotification)
	}
}

func TestStore_MalformedEntriesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.json")
	doc := `{
		"1": {"name": "Bitcoin", "symbol": "BTC",
		      "short_term": {"last_price": 100, "last_notification_time": "2026-08-30T10:00:00Z"},
		      "long_term": {"last_price": 100, "last_notification_time": "2026-08-30T10:00:00Z"}},
		"not-a-number": {"name": "Bad", "symbol": "BAD",
		      "short_term": {"last_price": 1, "last_notification_time": "2026-08-30T10:00:00Z"},
		      "long_term": {"last_price": 1, "last_notification_time": "2026-08-30T10:00:00Z"}},
		"3": {"name": "Brokentime", "symbol": "BRK",
		      "short_term": {"last_price": 1, "last_notification_time": "yesterday"},
		      "long_term": {"last_price": 1, "last_notification_time": "2026-08-30T10:00:00Z"}},
		"4": {"symbol": "NAMELESS",
		      "short_term": {"last_price": 1, "last_notification_time": "2026-08-30T10:00:00Z"},
		      "long_term": {"last_price": 1, "last_notification_time": "2026-08-30T10:00:00Z"}}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	watch, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(watch) != 1 {
		t.Fatalf("expected only the valid entry to load, got %d: %+v", len(watch), watch)
	}
	if entry, ok := watch[1]; !ok || entry.Symbol != "BTC" {
		t.Errorf("valid entry lost: %+v", watch)
	}
}

func TestStore_UpdateWithoutChangeDoesNotRewrite(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(types.Asset{ID: 1, Name: "Bitcoin", Symbol: "BTC"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	err = s.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		delete(watch, 1) // mutation without reporting a change must be discarded
		return watch, false, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	after, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Error("document rewritten despite changed=false")
	}
}

func TestStore_ConcurrentAddRemove(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := s.Add(types.Asset{ID: id, Name: "Coin", Symbol: "C"}); err != nil {
				t.Errorf("Add %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	assets, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 20 {
		t.Errorf("expected 20 assets after concurrent adds, got %d", len(assets))
	}
}
