package dispatch

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type BreakerStatus int

const (
	Closed BreakerStatus = iota
	Open
	HalfOpen
)

func (s BreakerStatus) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func (s BreakerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type BreakerEvent int

const (
	// EventAttempt asks for permission to dispatch.
	EventAttempt BreakerEvent = iota
	EventSuccess
	EventFailure
	// EventRelease ends a dispatch that produced no reply.
	EventRelease
)

const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 60 * time.Second
)

type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

func (c BreakerConfig) normalize() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	return c
}

type BreakerState struct {
	Status      BreakerStatus `json:"state"`
	Failures    int           `json:"failures"`
	LastFailure time.Time     `json:"last_failure_time,omitempty"`
	LastSuccess time.Time     `json:"last_success_time,omitempty"`
	// TrialInFlight marks the single half-open attempt.
	TrialInFlight bool `json:"trial_in_flight,omitempty"`
}

// Allows reports whether a dispatch may start from this state.
func (s BreakerState) Allows(now time.Time, cfg BreakerConfig) bool {
	cfg = cfg.normalize()
	switch s.Status {
	case Open:
		return now.Sub(s.LastFailure) >= cfg.ResetTimeout
	case HalfOpen:
		return !s.TrialInFlight
	default:
		return true
	}
}

// Transition is the breaker state machine. It has no side effects.
func Transition(s BreakerState, ev BreakerEvent, now time.Time, cfg BreakerConfig) BreakerState {
	cfg = cfg.normalize()
	switch ev {
	case EventAttempt:
		switch s.Status {
		case Open:
			if now.Sub(s.LastFailure) >= cfg.ResetTimeout {
				s.Status = HalfOpen
				s.TrialInFlight = true
			}
		case HalfOpen:
			if !s.TrialInFlight {
				s.TrialInFlight = true
			}
		}
	case EventSuccess:
		s.LastSuccess = now
		s.Status = Closed
		s.Failures = 0
		s.TrialInFlight = false
	case EventFailure:
		s.LastFailure = now
		s.TrialInFlight = false
		switch s.Status {
		case HalfOpen, Open:
			s.Status = Open
			s.Failures++
		default:
			s.Failures++
			if s.Failures >= cfg.MaxFailures {
				s.Status = Open
			}
		}
	case EventRelease:
		s.TrialInFlight = false
	}
	return s
}

// BreakerSet tracks one breaker per plugin. Entries are created on the first
// failure and live until the process exits.
type BreakerSet struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	now    func() time.Time
	states map[string]BreakerState
}

func NewBreakerSet(cfg BreakerConfig, now func() time.Time) *BreakerSet {
	if now == nil {
		now = time.Now
	}
	return &BreakerSet{
		cfg:    cfg.normalize(),
		now:    now,
		states: map[string]BreakerState{},
	}
}

// Acquire returns false when dispatch to name is blocked. A true result from
// a half-open breaker claims the trial slot.
func (b *BreakerSet) Acquire(name string) bool {
	name = strings.TrimSpace(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[name]
	if !ok {
		return true
	}
	now := b.now()
	if !s.Allows(now, b.cfg) {
		return false
	}
	b.states[name] = Transition(s, EventAttempt, now, b.cfg)
	return true
}

func (b *BreakerSet) RecordSuccess(name string) {
	b.record(name, EventSuccess, false)
}

func (b *BreakerSet) RecordFailure(name string) BreakerState {
	return b.record(name, EventFailure, true)
}

func (b *BreakerSet) Release(name string) {
	b.record(name, EventRelease, false)
}

func (b *BreakerSet) record(name string, ev BreakerEvent, create bool) BreakerState {
	name = strings.TrimSpace(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[name]
	if !ok && !create {
		return BreakerState{}
	}
	next := Transition(s, ev, b.now(), b.cfg)
	b.states[name] = next
	return next
}

func (b *BreakerSet) State(name string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[strings.TrimSpace(name)]
}

func (b *BreakerSet) Snapshot() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]BreakerState, len(b.states))
	for k, v := range b.states {
		out[k] = v
	}
	return out
}

func (b *BreakerSet) Names() []string {
	snap := b.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
