package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

type stubTransport struct {
	identityErr error
	plainErr    error
	calls       []string
}

func (s *stubTransport) SendAsIdentity(_ context.Context, channelID string, id replybot.Identity, text string) error {
	s.calls = append(s.calls, "identity:"+channelID+":"+id.DisplayName+":"+text)
	return s.identityErr
}

func (s *stubTransport) Send(_ context.Context, channelID, text string) error {
	s.calls = append(s.calls, "plain:"+channelID+":"+text)
	return s.plainErr
}

type modeCounter map[string]int

func (m modeCounter) Delivery(mode string, ok bool) {
	if ok {
		m[mode+"_ok"]++
		return
	}
	m[mode+"_fail"]++
}

func newTestAdapter(t *testing.T, tr Transport, obs Observer) *Adapter {
	t.Helper()
	a, err := NewAdapter(AdapterOptions{
		Transport: tr,
		Observer:  obs,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a
}

var (
	testMsg   = replybot.Message{ChannelID: "c1"}
	testReply = replybot.Reply{Plugin: "p", Text: "Hold.", Identity: replybot.Identity{DisplayName: "HoldBot", AvatarURL: "https://x/h.png"}}
)

func TestDeliverIdentitySuccess(t *testing.T) {
	t.Parallel()

	tr := &stubTransport{}
	obs := modeCounter{}
	if err := newTestAdapter(t, tr, obs).Deliver(context.Background(), testMsg, testReply); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := strings.Join(tr.calls, "|"); got != "identity:c1:HoldBot:Hold." {
		t.Fatalf("calls = %s", got)
	}
	if obs["identity_ok"] != 1 {
		t.Fatalf("observer = %v", obs)
	}
}

func TestDeliverFallsBackOnce(t *testing.T) {
	t.Parallel()

	tr := &stubTransport{identityErr: ErrImpersonationUnavailable}
	if err := newTestAdapter(t, tr, nil).Deliver(context.Background(), testMsg, testReply); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(tr.calls) != 2 || tr.calls[1] != "plain:c1:Hold." {
		t.Fatalf("calls = %v", tr.calls)
	}

	tr = &stubTransport{identityErr: errors.New("webhook 500"), plainErr: errors.New("send 500")}
	obs := modeCounter{}
	err := newTestAdapter(t, tr, obs).Deliver(context.Background(), testMsg, testReply)
	if err == nil {
		t.Fatalf("Deliver() expected error after both sends failed")
	}
	if len(tr.calls) != 2 {
		t.Fatalf("calls = %v, want exactly one retry", tr.calls)
	}
	if obs["identity_fail"] != 1 || obs["plain_fail"] != 1 {
		t.Fatalf("observer = %v", obs)
	}
}

func TestDeliverValidates(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, &stubTransport{}, nil)
	partial := testReply
	partial.Identity.AvatarURL = ""
	if err := a.Deliver(context.Background(), testMsg, partial); err == nil {
		t.Fatalf("Deliver() with partial identity expected error")
	}
	if err := a.Deliver(context.Background(), replybot.Message{}, testReply); err == nil {
		t.Fatalf("Deliver() without channel expected error")
	}
	if _, err := NewAdapter(AdapterOptions{}); err == nil {
		t.Fatalf("NewAdapter() without transport expected error")
	}
}

func TestDeliverRateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	a, err := NewAdapter(AdapterOptions{
		Transport: &stubTransport{},
		Rate:      0.001,
		Burst:     1,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if err := a.Deliver(context.Background(), testMsg, testReply); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Deliver(ctx, testMsg, testReply); err == nil {
		t.Fatalf("second Deliver() expected rate limit error")
	}
	other := replybot.Message{ChannelID: "c2"}
	if err := a.Deliver(context.Background(), other, testReply); err != nil {
		t.Fatalf("Deliver() in another channel error = %v", err)
	}
}
