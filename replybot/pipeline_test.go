package replybot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

var testIdentity = Identity{DisplayName: "HoldBot", AvatarURL: "https://example.com/hold.png"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func always(context.Context, Message) (bool, error) { return true, nil }

func static(text string) ResponseFunc {
	return func(context.Context, Message) (string, error) { return text, nil }
}

func humanMessage(content string) Message {
	return Message{
		ID:        "m1",
		Content:   content,
		Author:    Author{ID: "u1", Username: "alice"},
		ChannelID: "c1",
		GuildID:   "g1",
	}
}

type stubResolver struct {
	id    *Identity
	err   error
	calls int
}

func (s *stubResolver) ResolvePersona(context.Context, PersonaRef, string) (*Identity, error) {
	s.calls++
	return s.id, s.err
}

type stubBlacklist struct {
	blocked bool
	err     error
	keys    []string
}

func (s *stubBlacklist) IsBlacklisted(_ context.Context, guildID, userID string) (bool, error) {
	s.keys = append(s.keys, guildID+":"+userID)
	return s.blocked, s.err
}

func TestEvaluatePriorityOrdering(t *testing.T) {
	t.Parallel()

	plugin := &Plugin{
		Name:            "p",
		ResponseRate:    100,
		DefaultIdentity: testIdentity,
		Triggers: []Trigger{
			{Name: "low", Priority: 1, Condition: always, Response: static("low")},
			{Name: "high", Priority: 10, Condition: always, Response: static("high")},
		},
	}
	p := &Pipeline{Logger: quietLogger()}
	reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if reply == nil || reply.Text != "high" || reply.Trigger != "high" {
		t.Fatalf("Evaluate() = %+v, want high trigger", reply)
	}
}

func TestSortedTriggersStable(t *testing.T) {
	t.Parallel()

	plugin := &Plugin{Triggers: []Trigger{
		{Name: "a", Priority: 5},
		{Name: "b"},
		{Name: "c", Priority: 5},
		{Name: "d"},
	}}
	var names []string
	for _, trig := range plugin.SortedTriggers() {
		names = append(names, trig.Name)
	}
	if got := strings.Join(names, ","); got != "a,c,b,d" {
		t.Fatalf("SortedTriggers() = %s, want a,c,b,d", got)
	}
	if plugin.Triggers[1].Name != "b" {
		t.Fatalf("SortedTriggers() mutated plugin triggers")
	}
}

func TestEvaluateResponseRateBoundary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rate int
		draw float64
		want bool
	}{
		{name: "equal_accepts", rate: 50, draw: 0.5, want: true},
		{name: "above_rejects", rate: 50, draw: 0.51, want: false},
		{name: "zero_rejects", rate: 0, draw: 0, want: false},
		{name: "full_accepts", rate: 100, draw: 0.9999, want: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plugin := &Plugin{
				Name:            "p",
				ResponseRate:    tc.rate,
				DefaultIdentity: testIdentity,
				Triggers:        []Trigger{{Name: "t", Condition: always, Response: static("ok")}},
			}
			draw := tc.draw
			p := &Pipeline{Logger: quietLogger(), Rand: func() float64 { return draw }}
			reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got := reply != nil; got != tc.want {
				t.Fatalf("Evaluate() replied = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateResponseRateBoundaryEveryRate(t *testing.T) {
	t.Parallel()

	for rate := 1; rate <= 99; rate++ {
		plugin := &Plugin{
			Name:            "p",
			ResponseRate:    rate,
			DefaultIdentity: testIdentity,
			Triggers:        []Trigger{{Name: "t", Condition: always, Response: static("ok")}},
		}
		draw := float64(rate) / 100
		p := &Pipeline{Logger: quietLogger(), Rand: func() float64 { return draw }}
		reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if reply == nil {
			t.Fatalf("rate=%d draw=%v: rejected, want accepted", rate, draw)
		}
	}
}

func TestEvaluateContinuesPastTriggerFailures(t *testing.T) {
	t.Parallel()

	plugin := &Plugin{
		Name:            "p",
		ResponseRate:    100,
		DefaultIdentity: testIdentity,
		Triggers: []Trigger{
			{Name: "boom", Priority: 40, Condition: func(context.Context, Message) (bool, error) {
				return false, errors.New("boom")
			}, Response: static("never")},
			{Name: "panic", Priority: 30, Condition: func(context.Context, Message) (bool, error) {
				panic("condition panic")
			}, Response: static("never")},
			{Name: "blank", Priority: 20, Condition: always, Response: static("   ")},
			{Name: "bad-identity", Priority: 15, Condition: always, Response: static("never"),
				Identity: func(context.Context, Message) (Identity, error) { return Identity{}, errors.New("lookup") }},
			{Name: "partial-identity", Priority: 12, Condition: always, Response: static("never"),
				Identity: FixedIdentity(Identity{DisplayName: "NoAvatar"})},
			{Name: "winner", Priority: 10, Condition: always, Response: static("ok")},
		},
	}
	p := &Pipeline{Logger: quietLogger()}
	reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if reply == nil || reply.Trigger != "winner" {
		t.Fatalf("Evaluate() = %+v, want winner", reply)
	}
	if reply.Identity != testIdentity {
		t.Fatalf("Evaluate() identity = %+v, want default", reply.Identity)
	}
}

func TestEvaluateTriggerIdentityWins(t *testing.T) {
	t.Parallel()

	override := Identity{DisplayName: "Other", AvatarURL: "https://example.com/o.png"}
	resolver := &stubResolver{id: &testIdentity}
	plugin := &Plugin{
		Name:         "p",
		ResponseRate: 100,
		Persona:      PersonaRef{Name: "chad"},
		Triggers:     []Trigger{{Name: "t", Condition: always, Response: static("ok"), Identity: FixedIdentity(override)}},
	}
	p := &Pipeline{Logger: quietLogger(), Resolver: resolver}
	reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if reply == nil || reply.Identity != override {
		t.Fatalf("Evaluate() = %+v, want override identity", reply)
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver calls = %d, want 0", resolver.calls)
	}
}

func TestEvaluatePersonaUnresolvedStaysSilent(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{}
	plugin := &Plugin{
		Name:            "p",
		ResponseRate:    100,
		Persona:         PersonaRef{Name: "ghost"},
		DefaultIdentity: testIdentity,
		Triggers:        []Trigger{{Name: "t", Condition: always, Response: static("ok")}},
	}
	p := &Pipeline{Logger: quietLogger(), Resolver: resolver}
	reply, err := p.Evaluate(context.Background(), plugin, humanMessage("x"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if reply != nil {
		t.Fatalf("Evaluate() = %+v, want nil", reply)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1", resolver.calls)
	}
}

func TestEvaluateFilterAndBlacklist(t *testing.T) {
	t.Parallel()

	base := func() *Plugin {
		return &Plugin{
			Name:            "p",
			ResponseRate:    100,
			DefaultIdentity: testIdentity,
			IgnoreBots:      true,
			Triggers:        []Trigger{{Name: "t", Condition: always, Response: static("ok")}},
		}
	}

	p := &Pipeline{Logger: quietLogger(), Policy: SenderPolicy{SelfID: "self"}}
	botMsg := humanMessage("x")
	botMsg.Author.Bot = true
	if reply, _ := p.Evaluate(context.Background(), base(), botMsg); reply != nil {
		t.Fatalf("Evaluate(bot) = %+v, want nil", reply)
	}

	humans := base()
	humans.IgnoreBots = false
	humans.IgnoreHumans = true
	if reply, _ := p.Evaluate(context.Background(), humans, humanMessage("x")); reply != nil {
		t.Fatalf("Evaluate(human, ignore_humans) = %+v, want nil", reply)
	}

	bl := &stubBlacklist{blocked: true}
	p.Blacklist = bl
	if reply, _ := p.Evaluate(context.Background(), base(), humanMessage("x")); reply != nil {
		t.Fatalf("Evaluate(blacklisted) = %+v, want nil", reply)
	}
	if len(bl.keys) != 1 || bl.keys[0] != "g1:u1" {
		t.Fatalf("blacklist keys = %v", bl.keys)
	}

	p.Blacklist = &stubBlacklist{err: errors.New("store down")}
	if _, err := p.Evaluate(context.Background(), base(), humanMessage("x")); err == nil {
		t.Fatalf("Evaluate() expected blacklist error")
	}

	custom := base()
	custom.MessageFilter = func(context.Context, Message) (bool, error) { return false, errors.New("bad filter") }
	p.Blacklist = nil
	if _, err := p.Evaluate(context.Background(), custom, humanMessage("x")); err == nil {
		t.Fatalf("Evaluate() expected filter error")
	}
}

func TestEvaluateDisabled(t *testing.T) {
	t.Parallel()

	plugin := &Plugin{
		Name:            "p",
		Disabled:        true,
		ResponseRate:    100,
		DefaultIdentity: testIdentity,
		Triggers:        []Trigger{{Name: "t", Condition: always, Response: static("ok")}},
	}
	reply, err := (&Pipeline{Logger: quietLogger()}).Evaluate(context.Background(), plugin, humanMessage("x"))
	if err != nil || reply != nil {
		t.Fatalf("Evaluate() = %+v, %v; want nil, nil", reply, err)
	}
}

func TestSenderPolicyExcluded(t *testing.T) {
	t.Parallel()

	policy := SenderPolicy{SelfID: "self", ExcludedIDs: []string{"covabot"}, ExcludedNames: []string{"HoldBot"}}
	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{name: "self", msg: Message{Author: Author{ID: "self", Bot: true}}, want: true},
		{name: "excluded_id", msg: Message{Author: Author{ID: "covabot"}}, want: true},
		{name: "excluded_name_webhook", msg: Message{Author: Author{ID: "w1", Username: "holdbot", Bot: true}, WebhookID: "w1"}, want: true},
		{name: "human_named_like_bot", msg: Message{Author: Author{ID: "u2", Username: "HoldBot"}}, want: false},
		{name: "other_bot", msg: Message{Author: Author{ID: "b2", Username: "other", Bot: true}}, want: false},
	}
	for _, tc := range cases {
		if got := policy.Excluded(tc.msg); got != tc.want {
			t.Fatalf("%s: Excluded() = %v, want %v", tc.name, got, tc.want)
		}
	}
	policy.ExcludeWebhooks = true
	if !policy.Excluded(Message{Author: Author{ID: "w9", Bot: true}, WebhookID: "w9"}) {
		t.Fatalf("Excluded(webhook) = false, want true")
	}
}
