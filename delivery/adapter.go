// Package delivery sends replies under their resolved identity.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andrewgari/starbunk-js-sub002/internal/outputfmt"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"golang.org/x/time/rate"
)

// ErrImpersonationUnavailable is returned by transports that cannot send as
// another identity in a channel.
var ErrImpersonationUnavailable = errors.New("impersonation unavailable")

type Transport interface {
	SendAsIdentity(ctx context.Context, channelID string, id replybot.Identity, text string) error
	Send(ctx context.Context, channelID, text string) error
}

const (
	ModeIdentity = "identity"
	ModePlain    = "plain"
)

type Observer interface {
	Delivery(mode string, ok bool)
}

type AdapterOptions struct {
	Transport Transport
	// Rate is the sustained sends per second allowed per channel. Zero
	// disables throttling.
	Rate     float64
	Burst    int
	Observer Observer
	Logger   *slog.Logger
}

type Adapter struct {
	transport Transport
	limiters  *limiterPool
	observer  Observer
	logger    *slog.Logger
}

func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var pool *limiterPool
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		pool = newLimiterPool(rate.Limit(opts.Rate), burst)
	}
	return &Adapter{
		transport: opts.Transport,
		limiters:  pool,
		observer:  opts.Observer,
		logger:    logger,
	}, nil
}

// Deliver sends reply into the message's channel. A failed impersonated send
// is retried once as a plain send; a second failure is returned and the reply
// is dropped.
func (a *Adapter) Deliver(ctx context.Context, msg replybot.Message, reply replybot.Reply) error {
	if a == nil {
		return fmt.Errorf("delivery adapter is not initialized")
	}
	channelID := strings.TrimSpace(msg.ChannelID)
	text := strings.TrimSpace(reply.Text)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if !reply.Identity.Complete() {
		return fmt.Errorf("identity is incomplete")
	}
	if err := a.wait(ctx, channelID); err != nil {
		return err
	}

	err := a.transport.SendAsIdentity(ctx, channelID, reply.Identity, text)
	a.observe(ModeIdentity, err == nil)
	if err == nil {
		a.logger.Debug("delivery_sent", "plugin", reply.Plugin, "channel_id", channelID, "mode", ModeIdentity)
		return nil
	}
	a.logger.Warn("delivery_identity_send_failed",
		"plugin", reply.Plugin,
		"channel_id", channelID,
		"display_name", reply.Identity.DisplayName,
		"error", outputfmt.FormatErrorForDisplay(err),
	)

	plainErr := a.transport.Send(ctx, channelID, text)
	a.observe(ModePlain, plainErr == nil)
	if plainErr != nil {
		a.logger.Error("delivery_dropped", "plugin", reply.Plugin, "channel_id", channelID, "error", outputfmt.FormatErrorForDisplay(plainErr))
		return fmt.Errorf("plain send after identity failure: %w", plainErr)
	}
	a.logger.Info("delivery_sent", "plugin", reply.Plugin, "channel_id", channelID, "mode", ModePlain)
	return nil
}

func (a *Adapter) wait(ctx context.Context, channelID string) error {
	if a.limiters == nil {
		return nil
	}
	return a.limiters.get(channelID).Wait(ctx)
}

func (a *Adapter) observe(mode string, ok bool) {
	if a.observer != nil {
		a.observer.Delivery(mode, ok)
	}
}

type limiterPool struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLimiterPool(limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{limit: limit, burst: burst, limiters: map[string]*rate.Limiter{}}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	return l
}
