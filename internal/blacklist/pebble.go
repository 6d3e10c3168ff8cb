package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// PebbleStore persists entries in a pebble database so blocks survive
// restarts.
type PebbleStore struct {
	mu  sync.RWMutex
	db  *pebble.DB
	now func() time.Time
}

func OpenPebble(dir string, now func() time.Time) (*PebbleStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("blacklist dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blacklist dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blacklist db: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &PebbleStore{db: db, now: now}, nil
}

func (s *PebbleStore) IsBlacklisted(_ context.Context, guildID, userID string) (bool, error) {
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(userID) == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return false, ErrClosed
	}
	e, ok, err := s.get(Key(guildID, userID))
	if err != nil || !ok {
		return false, err
	}
	return !e.Expired(s.now()), nil
}

func (s *PebbleStore) Add(_ context.Context, guildID, userID string, ttl time.Duration) error {
	guildID, userID, err := normalizeIDs(guildID, userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(newEntry(guildID, userID, s.now(), ttl))
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Set([]byte(Key(guildID, userID)), raw, pebble.Sync)
}

func (s *PebbleStore) Remove(_ context.Context, guildID, userID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Delete([]byte(Key(guildID, userID)), pebble.Sync)
}

func (s *PebbleStore) List(_ context.Context, guildID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	prefix := []byte(guildPrefix(guildID))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	now := s.now()
	out := []Entry{}
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if e.Expired(now) {
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PebbleStore) get(key string) (Entry, bool, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	defer closer.Close()
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, true, nil
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
