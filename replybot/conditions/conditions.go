// Package conditions provides predicate builders for reply triggers.
package conditions

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

func MatchesPattern(re *regexp.Regexp) replybot.Condition {
	return func(_ context.Context, msg replybot.Message) (bool, error) {
		if re == nil {
			return false, fmt.Errorf("pattern is nil")
		}
		return re.MatchString(msg.Content), nil
	}
}

// MatchesRegex compiles expr once; an invalid expression is reported at build
// time.
func MatchesRegex(expr string) (replybot.Condition, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return MatchesPattern(re), nil
}

// ContainsWord matches word as a whole word, ignoring case.
func ContainsWord(word string) replybot.Condition {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(word)) + `\b`)
	return MatchesPattern(re)
}

func ContainsPhrase(phrase string) replybot.Condition {
	needle := strings.ToLower(strings.TrimSpace(phrase))
	return func(_ context.Context, msg replybot.Message) (bool, error) {
		if needle == "" {
			return false, nil
		}
		return strings.Contains(strings.ToLower(msg.Content), needle), nil
	}
}

// FromUser matches the sender id. In debug mode with a test persona set, it
// matches only that persona.
func FromUser(id string) replybot.Condition {
	id = strings.TrimSpace(id)
	return func(_ context.Context, msg replybot.Message) (bool, error) {
		if replybot.DebugMode() {
			if test := replybot.TestPersona(); test != "" {
				return msg.SenderID() == test, nil
			}
		}
		return msg.SenderID() == id, nil
	}
}

func FromBot() replybot.Condition {
	return func(_ context.Context, msg replybot.Message) (bool, error) {
		return msg.Author.Bot || msg.FromWebhook(), nil
	}
}

func FromHuman() replybot.Condition {
	return Not(FromBot())
}

func InChannel(ids ...string) replybot.Condition {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return func(_ context.Context, msg replybot.Message) (bool, error) {
		return set[strings.TrimSpace(msg.ChannelID)], nil
	}
}

// WithChance passes roughly chance percent of the time. rnd may be nil.
func WithChance(chance int, rnd func() float64) replybot.Condition {
	if rnd == nil {
		rnd = rand.Float64
	}
	return func(context.Context, replybot.Message) (bool, error) {
		if replybot.DebugMode() {
			return true, nil
		}
		if chance <= 0 {
			return false, nil
		}
		return rnd() <= float64(chance)/100, nil
	}
}

// WithinTimeframeOf passes while the state mark for key is younger than d.
func WithinTimeframeOf(state *replybot.State, key string, d time.Duration, now func() time.Time) replybot.Condition {
	if now == nil {
		now = time.Now
	}
	return func(context.Context, replybot.Message) (bool, error) {
		elapsed, ok := state.Since(key, now())
		if !ok {
			return false, nil
		}
		return elapsed >= 0 && elapsed <= d, nil
	}
}

// DuringSchedule passes when the cron expression is due at the current minute.
func DuringSchedule(expr string, now func() time.Time) (replybot.Condition, error) {
	expr = strings.TrimSpace(expr)
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid schedule expression: %q", expr)
	}
	if now == nil {
		now = time.Now
	}
	g := gronx.New()
	return func(context.Context, replybot.Message) (bool, error) {
		return g.IsDue(expr, now().Truncate(time.Minute))
	}, nil
}

func Always() replybot.Condition {
	return func(context.Context, replybot.Message) (bool, error) {
		return true, nil
	}
}

// And stops at the first false result. Errors are returned to the caller
// unchanged.
func And(conds ...replybot.Condition) replybot.Condition {
	return func(ctx context.Context, msg replybot.Message) (bool, error) {
		for _, c := range conds {
			ok, err := c(ctx, msg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Or stops at the first true result. A failing branch is logged to logger
// (slog.Default when nil) and counts as false.
func Or(logger *slog.Logger, conds ...replybot.Condition) replybot.Condition {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg replybot.Message) (bool, error) {
		for i, c := range conds {
			ok, err := safeEval(ctx, c, msg)
			if err != nil {
				logger.Warn("condition_or_branch_error", "branch", i, "error", err.Error())
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func Not(c replybot.Condition) replybot.Condition {
	return func(ctx context.Context, msg replybot.Message) (bool, error) {
		ok, err := c(ctx, msg)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

func safeEval(ctx context.Context, c replybot.Condition, msg replybot.Message) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if c == nil {
		return false, fmt.Errorf("condition is nil")
	}
	return c(ctx, msg)
}
