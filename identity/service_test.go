package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/google/go-cmp/cmp"
)

type stubPersonas struct {
	mu    sync.Mutex
	ids   map[string]string
	err   error
	calls int
}

func (s *stubPersonas) LookupUnderlyingIdentity(_ context.Context, persona string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", false, s.err
	}
	id, ok := s.ids[persona]
	return id, ok, nil
}

type memberKeyT struct{ audience, member string }

type stubMembers struct {
	mu          sync.Mutex
	local       map[memberKeyT]MemberProfile
	global      map[string]MemberProfile
	localErr    error
	localCalls  int
	globalCalls int
}

func (s *stubMembers) LookupAudienceLocalIdentity(_ context.Context, audienceID, memberID string) (MemberProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localCalls++
	if s.localErr != nil {
		return MemberProfile{}, false, s.localErr
	}
	p, ok := s.local[memberKeyT{audienceID, memberID}]
	return p, ok, nil
}

func (s *stubMembers) LookupGlobalIdentity(_ context.Context, memberID string) (MemberProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalCalls++
	p, ok := s.global[memberID]
	return p, ok, nil
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

func newTestService(personas *stubPersonas, members *stubMembers, clock *fakeClock) *Service {
	return NewServiceWithOptions(personas, members, Options{
		Now:       clock.Now,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		afterFunc: clock.AfterFunc,
	})
}

func fixtures() (*stubPersonas, *stubMembers, *fakeClock) {
	personas := &stubPersonas{ids: map[string]string{"chad": "100"}}
	members := &stubMembers{
		local: map[memberKeyT]MemberProfile{
			{"g1", "100"}: {Nickname: "Chad in G1", AvatarURL: "https://cdn/g1.png", GlobalName: "Chad", GlobalAvatarURL: "https://cdn/global.png"},
			{"g2", "100"}: {GlobalName: "Chad", GlobalAvatarURL: "https://cdn/global.png"},
		},
		global: map[string]MemberProfile{
			"100": {GlobalName: "Chad", GlobalAvatarURL: "https://cdn/global.png"},
		},
	}
	clock := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	return personas, members, clock
}

func TestResolvePrefersAudienceLocalFields(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	members.local[memberKeyT{"g3", "100"}] = MemberProfile{Nickname: "Local Only Name", GlobalName: "Chad", GlobalAvatarURL: "https://cdn/global.png"}
	svc := newTestService(personas, members, clock)

	cases := []struct {
		audience string
		want     replybot.Identity
	}{
		{"g1", replybot.Identity{DisplayName: "Chad in G1", AvatarURL: "https://cdn/g1.png"}},
		{"g2", replybot.Identity{DisplayName: "Chad", AvatarURL: "https://cdn/global.png"}},
		{"g3", replybot.Identity{DisplayName: "Local Only Name", AvatarURL: "https://cdn/global.png"}},
	}
	for _, tc := range cases {
		got := svc.Resolve(context.Background(), "chad", tc.audience, false)
		if got == nil {
			t.Fatalf("Resolve(%s) = nil", tc.audience)
		}
		if diff := cmp.Diff(tc.want, *got); diff != "" {
			t.Fatalf("Resolve(%s) mismatch (-want +got):\n%s", tc.audience, diff)
		}
	}
}

func TestResolveCacheCorrectness(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	svc := newTestService(personas, members, clock)
	ctx := context.Background()

	svc.Resolve(ctx, "chad", "g1", false)
	svc.Resolve(ctx, "chad", "g1", false)
	if members.localCalls != 1 {
		t.Fatalf("local lookups after two resolves = %d, want 1", members.localCalls)
	}
	svc.Resolve(ctx, "chad", "g2", false)
	if members.localCalls != 2 {
		t.Fatalf("local lookups after second audience = %d, want 2", members.localCalls)
	}
	clock.Advance(time.Hour)
	svc.Resolve(ctx, "chad", "g1", false)
	if members.localCalls != 3 {
		t.Fatalf("local lookups after expiry = %d, want 3", members.localCalls)
	}
	svc.Resolve(ctx, "chad", "g1", true)
	if members.localCalls != 4 {
		t.Fatalf("local lookups after forced refresh = %d, want 4", members.localCalls)
	}
}

func TestResolveFallbackChain(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	members.localErr = errors.New("member lookup failed")
	svc := newTestService(personas, members, clock)

	got := svc.Resolve(context.Background(), "chad", "g1", false)
	if got == nil || got.DisplayName != "Chad" || got.AvatarURL != "https://cdn/global.png" {
		t.Fatalf("Resolve() = %+v, want global identity", got)
	}
	if members.globalCalls != 1 {
		t.Fatalf("global lookups = %d, want 1", members.globalCalls)
	}

	delete(members.global, "100")
	if got := svc.Resolve(context.Background(), "chad", "g9", false); got != nil {
		t.Fatalf("Resolve() = %+v, want nil when every strategy misses", got)
	}
}

func TestResolveUnknownPersonaIsNil(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	svc := newTestService(personas, members, clock)
	if got := svc.Resolve(context.Background(), "nobody", "g1", false); got != nil {
		t.Fatalf("Resolve(nobody) = %+v, want nil", got)
	}
	if members.localCalls != 0 {
		t.Fatalf("member lookups = %d, want 0", members.localCalls)
	}
	if svc.Stats().Size != 0 {
		t.Fatalf("Stats().Size = %d, want 0", svc.Stats().Size)
	}

	personas.err = errors.New("directory down")
	if got := svc.Resolve(context.Background(), "chad", "g1", false); got != nil {
		t.Fatalf("Resolve() on directory error = %+v, want nil", got)
	}
}

func TestCacheMaintenance(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	personas.ids["brad"] = "200"
	members.local[memberKeyT{"g1", "200"}] = MemberProfile{GlobalName: "Brad", GlobalAvatarURL: "https://cdn/brad.png"}
	svc := newTestService(personas, members, clock)
	ctx := context.Background()

	svc.Resolve(ctx, "chad", "g1", false)
	svc.Resolve(ctx, "chad", "g2", false)
	svc.Resolve(ctx, "brad", "g1", false)
	svc.ResolveMember(ctx, "100", "g1", false)

	want := Stats{Size: 4, Keys: []string{"brad|g1", "chad|g1", "chad|g2", "member:100|g1"}}
	if diff := cmp.Diff(want, svc.Stats()); diff != "" {
		t.Fatalf("Stats() mismatch (-want +got):\n%s", diff)
	}

	if n := svc.ClearForIdentity("100"); n != 3 {
		t.Fatalf("ClearForIdentity() = %d, want 3", n)
	}
	if diff := cmp.Diff([]string{"brad|g1"}, svc.Stats().Keys); diff != "" {
		t.Fatalf("keys after ClearForIdentity (-want +got):\n%s", diff)
	}

	svc.ClearCache()
	if svc.Stats().Size != 0 {
		t.Fatalf("Stats().Size after ClearCache = %d", svc.Stats().Size)
	}
	for i, timer := range clock.timers {
		if !timer.stopped {
			t.Fatalf("timer %d not stopped after clear", i)
		}
	}
}

func TestStaleTimerDoesNotEvictNewerEntry(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	svc := newTestService(personas, members, clock)
	ctx := context.Background()

	svc.Resolve(ctx, "chad", "g1", false)
	svc.Resolve(ctx, "chad", "g1", true)
	if len(clock.timers) != 2 {
		t.Fatalf("timers = %d, want 2", len(clock.timers))
	}
	if !clock.timers[0].stopped {
		t.Fatalf("first timer not stopped on overwrite")
	}

	clock.timers[0].fn()
	if svc.Stats().Size != 1 {
		t.Fatalf("stale timer evicted newer entry")
	}
	clock.timers[1].fn()
	if svc.Stats().Size != 0 {
		t.Fatalf("current timer did not evict its entry")
	}
}

func TestResolvePersonaRef(t *testing.T) {
	t.Parallel()

	personas, members, clock := fixtures()
	svc := newTestService(personas, members, clock)

	got, err := svc.ResolvePersona(context.Background(), replybot.PersonaRef{MemberID: "100"}, "g1")
	if err != nil || got == nil || got.DisplayName != "Chad in G1" {
		t.Fatalf("ResolvePersona(member) = %+v, %v", got, err)
	}
	if personas.calls != 0 {
		t.Fatalf("persona lookups = %d, want 0", personas.calls)
	}

	var nilSvc *Service
	if _, err := nilSvc.ResolvePersona(context.Background(), replybot.PersonaRef{Name: "chad"}, "g1"); err == nil {
		t.Fatalf("ResolvePersona() on nil service expected error")
	}
}
