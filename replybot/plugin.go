package replybot

import (
	"context"
	"sort"
)

type Condition func(ctx context.Context, msg Message) (bool, error)

type ResponseFunc func(ctx context.Context, msg Message) (string, error)

// MessageFilter returns true when the plugin must skip the message.
type MessageFilter func(ctx context.Context, msg Message) (bool, error)

type Trigger struct {
	Name      string
	Priority  int
	Condition Condition
	Response  ResponseFunc
	// Identity overrides the plugin identity when set.
	Identity IdentityFunc
}

type Plugin struct {
	Name            string
	Description     string
	Triggers        []Trigger
	DefaultIdentity Identity
	Persona         PersonaRef
	// ResponseRate is the percentage (0-100) of messages the plugin considers.
	ResponseRate  int
	MessageFilter MessageFilter
	IgnoreBots    bool
	IgnoreHumans  bool
	Disabled      bool
	State         *State
}

// SortedTriggers returns the triggers ordered by priority, highest first.
// Equal priorities keep registration order.
func (p *Plugin) SortedTriggers() []Trigger {
	if p == nil || len(p.Triggers) == 0 {
		return nil
	}
	out := make([]Trigger, len(p.Triggers))
	copy(out, p.Triggers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

type Reply struct {
	Plugin   string
	Trigger  string
	Text     string
	Identity Identity
}
