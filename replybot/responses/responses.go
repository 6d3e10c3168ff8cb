// Package responses provides text generators for reply triggers.
package responses

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

const maxRememberedChannels = 1000

func Static(text string) (replybot.ResponseFunc, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("static response is empty")
	}
	return func(context.Context, replybot.Message) (string, error) {
		return text, nil
	}, nil
}

type RandomOptions struct {
	// Weights must match the options length when set.
	Weights         []float64
	AllowRepetition bool
	Rand            func() float64
}

// Random picks one option per call. Unless repetition is allowed, it avoids
// returning the same option twice in a row in one channel.
func Random(options []string, opts RandomOptions) (replybot.ResponseFunc, error) {
	clean := make([]string, 0, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("random response option is empty")
		}
		clean = append(clean, o)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("random response options are empty")
	}
	if len(opts.Weights) > 0 && len(opts.Weights) != len(clean) {
		return nil, fmt.Errorf("weights length %d does not match options length %d", len(opts.Weights), len(clean))
	}
	if len(clean) == 1 {
		return Static(clean[0])
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	r := &randomPicker{
		options: clean,
		weights: opts.Weights,
		repeat:  opts.AllowRepetition,
		rnd:     rnd,
		last:    map[string]int{},
	}
	return r.respond, nil
}

type randomPicker struct {
	options []string
	weights []float64
	repeat  bool
	rnd     func() float64

	mu   sync.Mutex
	last map[string]int
}

func (r *randomPicker) respond(_ context.Context, msg replybot.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.last[msg.ChannelID]
	idx := r.pick()
	for attempts := 1; !r.repeat && seen && idx == prev && attempts < len(r.options)*2; attempts++ {
		idx = r.pick()
	}
	if len(r.last) >= maxRememberedChannels {
		r.last = map[string]int{}
	}
	r.last[msg.ChannelID] = idx
	return r.options[idx], nil
}

func (r *randomPicker) pick() int {
	if len(r.weights) == 0 {
		return int(r.rnd() * float64(len(r.options)))
	}
	total := 0.0
	for _, w := range r.weights {
		total += w
	}
	x := r.rnd() * total
	for i, w := range r.weights {
		x -= w
		if x < 0 {
			return i
		}
	}
	return len(r.weights) - 1
}

type VariableProvider func(ctx context.Context, msg replybot.Message) (map[string]string, error)

// Template substitutes {name} placeholders. If the provider fails, the raw
// template is returned.
func Template(tpl string, vars VariableProvider) (replybot.ResponseFunc, error) {
	base, err := Static(tpl)
	if err != nil {
		return nil, fmt.Errorf("template is empty")
	}
	return WithVariables(base, vars), nil
}

// WithVariables substitutes {name} placeholders in the output of next.
func WithVariables(next replybot.ResponseFunc, vars VariableProvider) replybot.ResponseFunc {
	return func(ctx context.Context, msg replybot.Message) (string, error) {
		out, err := next(ctx, msg)
		if err != nil || vars == nil {
			return out, err
		}
		values, err := vars(ctx, msg)
		if err != nil {
			slog.Default().Warn("template_variables_error", "error", err.Error())
			return out, nil
		}
		for k, v := range values {
			out = strings.ReplaceAll(out, "{"+k+"}", v)
		}
		return out, nil
	}
}

// MessageVariables exposes the sender and channel names to templates.
func MessageVariables(_ context.Context, msg replybot.Message) (map[string]string, error) {
	name := strings.TrimSpace(msg.Author.DisplayName)
	if name == "" {
		name = strings.TrimSpace(msg.Author.Username)
	}
	return map[string]string{
		"user":    name,
		"user_id": msg.SenderID(),
		"channel": msg.ChannelName,
		"content": msg.Content,
	}, nil
}

var groupRef = regexp.MustCompile(`\$(\d+)`)

// RegexCapture fills $1, $2 ... from the pattern's groups. Without a match,
// the raw template is returned.
func RegexCapture(re *regexp.Regexp, tpl string) (replybot.ResponseFunc, error) {
	if re == nil {
		return nil, fmt.Errorf("pattern is nil")
	}
	if strings.TrimSpace(tpl) == "" {
		return nil, fmt.Errorf("template is empty")
	}
	return func(_ context.Context, msg replybot.Message) (string, error) {
		m := re.FindStringSubmatch(msg.Content)
		if m == nil {
			return tpl, nil
		}
		return groupRef.ReplaceAllStringFunc(tpl, func(ref string) string {
			n, err := strconv.Atoi(ref[1:])
			if err != nil || n >= len(m) {
				return ""
			}
			return m[n]
		}), nil
	}, nil
}

// MarkTime records a time-window mark and then delegates to next.
func MarkTime(state *replybot.State, key string, now func() time.Time, next replybot.ResponseFunc) replybot.ResponseFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, msg replybot.Message) (string, error) {
		state.Mark(key, now())
		return next(ctx, msg)
	}
}
