// Package watchlist persists the per-asset watch state as a JSON document
// keyed by the decimal asset ID. Every read-modify-write of the document is
// serialized through the store's mutex; an advisory lock file additionally
// guards the file against concurrent writer processes.
package watchlist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
)

// Store owns the watchlist document on disk.
type Store struct {
	mu    sync.Mutex
	path  string
	flock lockfile.Lockfile
}

// New creates a store for the document at path, creating an empty document
// if none exists yet.
func New(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve watchlist path %q", path)
	}
	flock, err := lockfile.New(abs + ".lock")
	if err != nil {
		return nil, errors.Wrapf(err, "could not create lock file for %q", abs)
	}

	s := &Store{path: abs, flock: flock}

	if fi, err := os.Stat(abs); os.IsNotExist(err) || (err == nil && fi.Size() == 0) {
		if err := s.save(map[int64]types.WatchEntry{}); err != nil {
			return nil, err
		}
		log.Infof("created empty watchlist at %s", abs)
	} else if err != nil {
		return nil, errors.Wrapf(err, "could not stat watchlist %q", abs)
	}

	return s, nil
}

// Load returns the current watchlist. Entries that fail to parse are skipped
// with a warning so one bad record never blocks the rest.
func (s *Store) Load() (map[int64]types.WatchEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update runs fn under the store lock with the freshly loaded watchlist and
// persists the returned map when fn reports a change. The whole
// load-modify-save sequence is one atomic unit with respect to every other
// writer going through this store.
func (s *Store) Update(fn func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	watch, err := s.load()
	if err != nil {
		return err
	}
	updated, changed, err := fn(watch)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(updated)
}

// Add inserts an asset with null baselines. It reports false without error
// when the asset is already watched; existing entries are never reset.
func (s *Store) Add(asset types.Asset) (bool, error) {
	added := false
	err := s.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		if _, exists := watch[asset.ID]; exists {
			return watch, false, nil
		}
		now := time.Now()
		watch[asset.ID] = types.WatchEntry{
			Name:      asset.Name,
			Symbol:    asset.Symbol,
			ShortTerm: types.Baseline{LastNotification: now},
			LongTerm:  types.Baseline{LastNotification: now},
		}
		added = true
		return watch, true, nil
	})
	return added, err
}

// Remove deletes an asset from the watchlist. It reports false without error
// when the asset was not watched.
func (s *Store) Remove(id int64) (bool, error) {
	removed := false
	err := s.Update(func(watch map[int64]types.WatchEntry) (map[int64]types.WatchEntry, bool, error) {
		if _, exists := watch[id]; !exists {
			return watch, false, nil
		}
		delete(watch, id)
		removed = true
		return watch, true, nil
	})
	return removed, err
}

// List returns the watched assets ordered by ID.
func (s *Store) List() ([]types.Asset, error) {
	watch, err := s.Load()
	if err != nil {
		return nil, err
	}
	assets := make([]types.Asset, 0, len(watch))
	for id, entry := range watch {
		assets = append(assets, types.Asset{ID: id, Name: entry.Name, Symbol: entry.Symbol})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (s *Store) load() (map[int64]types.WatchEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int64]types.WatchEntry{}, nil
		}
		return nil, errors.Wrapf(err, "could not read watchlist %q", s.path)
	}
	if len(data) == 0 {
		return map[int64]types.WatchEntry{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "watchlist %q is not valid JSON", s.path)
	}

	watch := make(map[int64]types.WatchEntry, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			log.Warnf("skipping watchlist entry with non-numeric key %q", key)
			continue
		}
		var entry types.WatchEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.Warnf("skipping malformed watchlist entry %s: %v", key, err)
			continue
		}
		if entry.Name == "" || entry.Symbol == "" {
			log.Warnf("skipping watchlist entry %s: missing name or symbol", key)
			continue
		}
		watch[id] = entry
	}
	return watch, nil
}

// save writes the document to a temporary file and renames it into place so
// concurrent readers never observe a partial write.
func (s *Store) save(watch map[int64]types.WatchEntry) error {
	if err := s.lockFile(); err != nil {
		return err
	}
	defer func() {
		if err := s.flock.Unlock(); err != nil {
			log.Warnf("could not release watchlist lock: %v", err)
		}
	}()

	doc := make(map[string]types.WatchEntry, len(watch))
	for id, entry := range watch {
		doc[strconv.FormatInt(id, 10)] = entry
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode watchlist")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "could not write %q", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "could not rename %q into place", tmp)
	}
	return nil
}

func (s *Store) lockFile() error {
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		if err = s.flock.TryLock(); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.Wrapf(err, "could not lock watchlist %q", s.path)
}
