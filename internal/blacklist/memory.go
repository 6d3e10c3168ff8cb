package blacklist

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Expired entries are dropped
// lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]Entry
	closed  bool
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, entries: map[string]Entry{}}
}

func (s *MemoryStore) IsBlacklisted(_ context.Context, guildID, userID string) (bool, error) {
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(userID) == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	key := Key(guildID, userID)
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if e.Expired(s.now()) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Add(_ context.Context, guildID, userID string, ttl time.Duration) error {
	guildID, userID, err := normalizeIDs(guildID, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[Key(guildID, userID)] = newEntry(guildID, userID, s.now(), ttl)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.entries, Key(guildID, userID))
	return nil
}

func (s *MemoryStore) List(_ context.Context, guildID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	prefix := guildPrefix(guildID)
	now := s.now()
	out := []Entry{}
	for key, e := range s.entries {
		if !strings.HasPrefix(key, prefix) || e.Expired(now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
