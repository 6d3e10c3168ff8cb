package replybot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
)

// Pipeline evaluates one plugin against one message and yields at most one
// reply. Trigger-local failures are logged and skipped; only filter and
// blacklist failures escape as errors.
type Pipeline struct {
	Resolver  PersonaResolver
	Blacklist BlacklistChecker
	Policy    SenderPolicy
	Logger    *slog.Logger
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

func (p *Pipeline) Evaluate(ctx context.Context, plugin *Plugin, msg Message) (*Reply, error) {
	if p == nil || plugin == nil || plugin.Disabled {
		return nil, nil
	}
	logger := p.logger()

	if !p.passesRate(plugin.ResponseRate) {
		logger.Debug("reply_rate_rejected", "plugin", plugin.Name, "rate", plugin.ResponseRate)
		return nil, nil
	}

	skip, err := p.filter(ctx, plugin, msg)
	if err != nil {
		return nil, fmt.Errorf("message filter: %w", err)
	}
	if skip {
		return nil, nil
	}

	if p.Blacklist != nil {
		blocked, err := p.Blacklist.IsBlacklisted(ctx, msg.GuildID, msg.SenderID())
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup: %w", err)
		}
		if blocked {
			logger.Debug("reply_sender_blacklisted", "plugin", plugin.Name, "guild_id", msg.GuildID, "user_id", msg.SenderID())
			return nil, nil
		}
	}

	for _, trig := range plugin.SortedTriggers() {
		reply := p.evaluateTrigger(ctx, plugin, trig, msg)
		if reply != nil {
			return reply, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) evaluateTrigger(ctx context.Context, plugin *Plugin, trig Trigger, msg Message) *Reply {
	logger := p.logger().With("plugin", plugin.Name, "trigger", trig.Name)
	if trig.Condition == nil || trig.Response == nil {
		logger.Warn("reply_trigger_incomplete")
		return nil
	}

	matched, err := guard(func() (bool, error) { return trig.Condition(ctx, msg) })
	if err != nil {
		logger.Warn("reply_trigger_condition_error", "error", err.Error())
		return nil
	}
	if !matched {
		return nil
	}

	text, err := guard(func() (string, error) { return trig.Response(ctx, msg) })
	if err != nil {
		logger.Warn("reply_trigger_response_error", "error", err.Error())
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Debug("reply_trigger_empty_response")
		return nil
	}

	id, err := p.identityFor(ctx, plugin, trig, msg)
	if err != nil {
		logger.Warn("reply_identity_error", "error", err.Error())
		return nil
	}
	if id == nil {
		logger.Info("reply_identity_unresolved", "guild_id", msg.GuildID)
		return nil
	}
	return &Reply{
		Plugin:   plugin.Name,
		Trigger:  trig.Name,
		Text:     text,
		Identity: *id,
	}
}

func (p *Pipeline) identityFor(ctx context.Context, plugin *Plugin, trig Trigger, msg Message) (*Identity, error) {
	if trig.Identity != nil {
		id, err := guard(func() (Identity, error) { return trig.Identity(ctx, msg) })
		if err != nil {
			return nil, err
		}
		if !id.Complete() {
			return nil, nil
		}
		return &id, nil
	}
	if !plugin.Persona.IsZero() {
		if p.Resolver == nil {
			return nil, fmt.Errorf("persona resolver is not configured")
		}
		id, err := guard(func() (*Identity, error) { return p.Resolver.ResolvePersona(ctx, plugin.Persona, msg.GuildID) })
		if err != nil {
			return nil, err
		}
		if id == nil || !id.Complete() {
			return nil, nil
		}
		return id, nil
	}
	if plugin.DefaultIdentity.Complete() {
		id := plugin.DefaultIdentity
		return &id, nil
	}
	return nil, nil
}

func (p *Pipeline) passesRate(rate int) bool {
	if rate <= 0 {
		return false
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return rnd() <= float64(rate)/100
}

func (p *Pipeline) filter(ctx context.Context, plugin *Plugin, msg Message) (bool, error) {
	if plugin.MessageFilter != nil {
		return guard(func() (bool, error) { return plugin.MessageFilter(ctx, msg) })
	}
	return DefaultFilter(p.Policy, plugin.IgnoreBots, plugin.IgnoreHumans)(ctx, msg)
}

// DefaultFilter skips excluded senders and, when configured, every bot or
// every human sender.
func DefaultFilter(policy SenderPolicy, ignoreBots, ignoreHumans bool) MessageFilter {
	return func(_ context.Context, msg Message) (bool, error) {
		if policy.Excluded(msg) {
			return true, nil
		}
		isBot := msg.Author.Bot || msg.FromWebhook()
		if ignoreBots && isBot {
			return true, nil
		}
		if ignoreHumans && !isBot {
			return true, nil
		}
		return false, nil
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// guard converts a panic in plugin code into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
