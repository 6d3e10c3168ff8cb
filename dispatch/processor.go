// Package dispatch fans one inbound message out to every eligible reply
// plugin and isolates plugin failures behind per-plugin circuit breakers.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Evaluator interface {
	Evaluate(ctx context.Context, plugin *replybot.Plugin, msg replybot.Message) (*replybot.Reply, error)
}

type Sender interface {
	Deliver(ctx context.Context, msg replybot.Message, reply replybot.Reply) error
}

// Admission returns false to drop a message before any plugin runs.
type Admission func(ctx context.Context, msg replybot.Message) bool

type Observer interface {
	MessageProcessed(outcome string)
	PluginOutcome(plugin, outcome string)
	BreakerState(plugin string, status BreakerStatus)
}

const (
	OutcomeReplied = "replied"
	OutcomeSilent  = "silent"
	OutcomeError   = "error"
	OutcomeBlocked = "circuit_open"
)

type ProcessorOptions struct {
	Plugins   []*replybot.Plugin
	Evaluator Evaluator
	Sender    Sender
	Policy    replybot.SenderPolicy
	Admission Admission
	Breaker   BreakerConfig
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
	// MaxConcurrency bounds plugin goroutines per message. Zero means no bound.
	MaxConcurrency int
}

type Processor struct {
	mu      sync.RWMutex
	plugins []*replybot.Plugin

	evaluator Evaluator
	sender    Sender
	policy    replybot.SenderPolicy
	admission Admission
	breakers  *BreakerSet
	observer  Observer
	logger    *slog.Logger
	limit     int
}

type Summary struct {
	CorrelationID string   `json:"correlation_id"`
	Rejected      string   `json:"rejected,omitempty"`
	Eligible      int      `json:"eligible"`
	Blocked       []string `json:"blocked,omitempty"`
	Triggered     []string `json:"triggered,omitempty"`
	Failed        []string `json:"failed,omitempty"`
}

func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		evaluator: opts.Evaluator,
		sender:    opts.Sender,
		policy:    opts.Policy,
		admission: opts.Admission,
		breakers:  NewBreakerSet(opts.Breaker, opts.Now),
		observer:  opts.Observer,
		logger:    logger,
		limit:     opts.MaxConcurrency,
	}
	p.SetPlugins(opts.Plugins)
	return p, nil
}

// SetPlugins replaces the plugin snapshot. Breaker state is kept by name.
func (p *Processor) SetPlugins(plugins []*replybot.Plugin) {
	next := make([]*replybot.Plugin, 0, len(plugins))
	for _, pl := range plugins {
		if pl != nil {
			next = append(next, pl)
		}
	}
	p.mu.Lock()
	p.plugins = next
	p.mu.Unlock()
	p.logger.Info("dispatch_plugins_updated", "count", len(next))
}

func (p *Processor) Plugins() []*replybot.Plugin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*replybot.Plugin, len(p.plugins))
	copy(out, p.plugins)
	return out
}

func (p *Processor) CircuitBreakerStatus() map[string]BreakerState {
	return p.breakers.Snapshot()
}

// Process handles one inbound message. Failures never escape; the summary is
// informational.
func (p *Processor) Process(ctx context.Context, msg replybot.Message) Summary {
	sum := Summary{CorrelationID: newCorrelationID()}
	logger := p.logger.With("correlation_id", sum.CorrelationID, "message_id", msg.ID, "channel_id", msg.ChannelID)

	if reason := p.reject(ctx, msg); reason != "" {
		sum.Rejected = reason
		logger.Debug("dispatch_message_rejected", "reason", reason, "user_id", msg.SenderID())
		p.observeMessage(reason)
		return sum
	}

	plugins := p.Plugins()
	if len(plugins) == 0 {
		sum.Rejected = "no_plugins"
		logger.Warn("dispatch_no_plugins")
		p.observeMessage(sum.Rejected)
		return sum
	}

	eligible := make([]*replybot.Plugin, 0, len(plugins))
	for _, pl := range plugins {
		if !p.breakers.Acquire(pl.Name) {
			sum.Blocked = append(sum.Blocked, pl.Name)
			p.observePlugin(pl.Name, OutcomeBlocked)
			continue
		}
		eligible = append(eligible, pl)
	}
	sum.Eligible = len(eligible)
	if len(eligible) == 0 {
		sum.Rejected = "all_circuits_open"
		logger.Warn("dispatch_all_circuits_open", "plugins", len(plugins))
		p.observeMessage(sum.Rejected)
		return sum
	}

	outcomes := make([]string, len(eligible))
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, pl := range eligible {
		g.Go(func() error {
			outcomes[i] = p.runPlugin(ctx, logger, pl, msg)
			return nil
		})
	}
	_ = g.Wait()

	for i, pl := range eligible {
		switch outcomes[i] {
		case OutcomeReplied:
			sum.Triggered = append(sum.Triggered, pl.Name)
		case OutcomeError:
			sum.Failed = append(sum.Failed, pl.Name)
		}
	}
	sort.Strings(sum.Triggered)
	sort.Strings(sum.Failed)
	if len(sum.Triggered) > 0 || len(sum.Failed) > 0 {
		logger.Info("dispatch_summary",
			"eligible", sum.Eligible,
			"triggered", strings.Join(sum.Triggered, ","),
			"failed", strings.Join(sum.Failed, ","),
		)
	}
	p.observeMessage("dispatched")
	return sum
}

func (p *Processor) reject(ctx context.Context, msg replybot.Message) string {
	if msg.SenderID() == "" {
		return "no_sender"
	}
	if p.policy.IsSelf(msg) {
		return "self"
	}
	if p.policy.Excluded(msg) {
		return "excluded_sender"
	}
	if p.admission != nil && !p.admission(ctx, msg) {
		return "admission"
	}
	return ""
}

func (p *Processor) runPlugin(ctx context.Context, logger *slog.Logger, pl *replybot.Plugin, msg replybot.Message) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = p.recordFailure(logger, pl.Name, fmt.Errorf("panic: %v", r))
		}
		p.observePlugin(pl.Name, outcome)
	}()

	reply, err := p.evaluator.Evaluate(ctx, pl, msg)
	if err != nil {
		return p.recordFailure(logger, pl.Name, err)
	}
	if reply == nil {
		p.breakers.Release(pl.Name)
		return OutcomeSilent
	}
	p.deliver(ctx, logger, msg, *reply)
	p.breakers.RecordSuccess(pl.Name)
	p.observeBreaker(pl.Name, Closed)
	return OutcomeReplied
}

// deliver hands reply to the sender. Send failures, panics included, are
// logged and never count against the plugin.
func (p *Processor) deliver(ctx context.Context, logger *slog.Logger, msg replybot.Message, reply replybot.Reply) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch_delivery_panic", "plugin", reply.Plugin, "trigger", reply.Trigger, "panic", fmt.Sprint(r))
		}
	}()
	if err := p.sender.Deliver(ctx, msg, reply); err != nil {
		logger.Warn("dispatch_delivery_dropped", "plugin", reply.Plugin, "trigger", reply.Trigger, "error", err.Error())
	}
}

func (p *Processor) recordFailure(logger *slog.Logger, name string, err error) string {
	state := p.breakers.RecordFailure(name)
	logger.Error("dispatch_plugin_error",
		"plugin", name,
		"failures", state.Failures,
		"circuit", state.Status.String(),
		"error", err.Error(),
	)
	p.observeBreaker(name, state.Status)
	return OutcomeError
}

func (p *Processor) observeMessage(outcome string) {
	if p.observer != nil {
		p.observer.MessageProcessed(outcome)
	}
}

func (p *Processor) observePlugin(name, outcome string) {
	if p.observer != nil {
		p.observer.PluginOutcome(name, outcome)
	}
}

func (p *Processor) observeBreaker(name string, status BreakerStatus) {
	if p.observer != nil {
		p.observer.BreakerState(name, status)
	}
}

func newCorrelationID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
