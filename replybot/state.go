package replybot

import (
	"strings"
	"sync"
	"time"
)

// State holds time-window marks for one plugin. Conditions and responses of
// the plugin capture the same State; nothing is shared across plugins.
type State struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func NewState() *State {
	return &State{marks: map[string]time.Time{}}
}

func (s *State) Mark(key string, at time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marks == nil {
		s.marks = map[string]time.Time{}
	}
	s.marks[strings.TrimSpace(key)] = at
}

func (s *State) Last(key string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.marks[strings.TrimSpace(key)]
	return at, ok
}

// Since returns the time elapsed since the mark, and false when the key was
// never marked.
func (s *State) Since(key string, now time.Time) (time.Duration, bool) {
	at, ok := s.Last(key)
	if !ok {
		return 0, false
	}
	return now.Sub(at), true
}
