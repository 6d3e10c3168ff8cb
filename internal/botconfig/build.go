package botconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/andrewgari/starbunk-js-sub002/replybot/conditions"
	"github.com/andrewgari/starbunk-js-sub002/replybot/responses"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidName   = errors.New("invalid plugin name")
	ErrDuplicateName = errors.New("duplicate plugin name")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

type BuildOptions struct {
	// Resolver serves persona and mimic identities declared on triggers.
	Resolver replybot.PersonaResolver
	Now      func() time.Time
	Rand     func() float64
	// Logger receives any_of and none_of branch errors.
	Logger *slog.Logger
}

// Build compiles every bot in f. The first invalid bot aborts the build.
func Build(f File, opts BuildOptions) ([]*replybot.Plugin, error) {
	seen := map[string]bool{}
	out := make([]*replybot.Plugin, 0, len(f.ReplyBots))
	for i, spec := range f.ReplyBots {
		p, err := BuildBot(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("reply-bots[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("reply-bots[%d]: %w: %s", i, ErrDuplicateName, p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

func BuildBot(spec BotSpec, opts BuildOptions) (*replybot.Plugin, error) {
	name := strings.TrimSpace(spec.Name)
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, spec.Name)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := &replybot.Plugin{
		Name:         name,
		Description:  strings.TrimSpace(spec.Description),
		ResponseRate: 100,
		IgnoreBots:   true,
		IgnoreHumans: spec.IgnoreHumans,
		Disabled:     spec.Disabled,
		State:        replybot.NewState(),
	}
	if spec.ResponseRate != nil {
		if *spec.ResponseRate < 0 || *spec.ResponseRate > 100 {
			return nil, fmt.Errorf("%s: response_rate must be within 0-100", name)
		}
		p.ResponseRate = *spec.ResponseRate
	}
	if spec.IgnoreBots != nil {
		p.IgnoreBots = *spec.IgnoreBots
	}
	if spec.Identity == nil {
		return nil, fmt.Errorf("%s: identity is required", name)
	}
	def, ref, err := pluginIdentity(*spec.Identity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	p.DefaultIdentity = def
	p.Persona = ref

	if len(spec.Triggers) == 0 {
		return nil, fmt.Errorf("%s: at least one trigger is required", name)
	}
	for i, ts := range spec.Triggers {
		trig, err := buildTrigger(p, spec, ts, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: triggers[%d]: %w", name, i, err)
		}
		if trig.Name == "" {
			trig.Name = name + "-" + strconv.Itoa(i+1)
		}
		p.Triggers = append(p.Triggers, trig)
	}
	return p, nil
}

func pluginIdentity(spec IdentitySpec) (replybot.Identity, replybot.PersonaRef, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case IdentityStatic:
		id := replybot.Identity{DisplayName: strings.TrimSpace(spec.BotName), AvatarURL: strings.TrimSpace(spec.AvatarURL)}
		if !id.Complete() {
			return replybot.Identity{}, replybot.PersonaRef{}, fmt.Errorf("static identity requires bot_name and avatar_url")
		}
		return id, replybot.PersonaRef{}, nil
	case IdentityPersona:
		if strings.TrimSpace(spec.Persona) == "" {
			return replybot.Identity{}, replybot.PersonaRef{}, fmt.Errorf("persona identity requires persona")
		}
		return replybot.Identity{}, replybot.PersonaRef{Name: strings.TrimSpace(spec.Persona)}, nil
	case IdentityMimic:
		if strings.TrimSpace(spec.AsMember) == "" {
			return replybot.Identity{}, replybot.PersonaRef{}, fmt.Errorf("mimic identity requires as_member")
		}
		return replybot.Identity{}, replybot.PersonaRef{MemberID: strings.TrimSpace(spec.AsMember)}, nil
	default:
		return replybot.Identity{}, replybot.PersonaRef{}, fmt.Errorf("unsupported identity type %q", spec.Type)
	}
}

func buildTrigger(p *replybot.Plugin, bot BotSpec, ts TriggerSpec, opts BuildOptions) (replybot.Trigger, error) {
	if ts.Conditions.IsZero() {
		return replybot.Trigger{}, fmt.Errorf("conditions are required")
	}
	cond, err := buildCondition(ts.Conditions.node, p.State, opts)
	if err != nil {
		return replybot.Trigger{}, err
	}

	options := ts.Responses
	if len(options) == 0 {
		options = bot.Responses
	}
	if len(options) == 0 {
		return replybot.Trigger{}, fmt.Errorf("responses are required")
	}
	resp, err := responses.Random(options, responses.RandomOptions{Rand: opts.Rand})
	if err != nil {
		return replybot.Trigger{}, err
	}
	if ts.Template {
		resp = responses.WithVariables(resp, responses.MessageVariables)
	}
	if key := strings.TrimSpace(ts.Mark); key != "" {
		resp = responses.MarkTime(p.State, key, opts.Now, resp)
	}

	trig := replybot.Trigger{
		Name:      strings.TrimSpace(ts.Name),
		Priority:  ts.Priority,
		Condition: cond,
		Response:  resp,
	}
	if ts.Identity != nil {
		idFn, err := triggerIdentity(*ts.Identity, opts.Resolver)
		if err != nil {
			return replybot.Trigger{}, err
		}
		trig.Identity = idFn
	}
	return trig, nil
}

func triggerIdentity(spec IdentitySpec, resolver replybot.PersonaResolver) (replybot.IdentityFunc, error) {
	def, ref, err := pluginIdentity(spec)
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return replybot.FixedIdentity(def), nil
	}
	if resolver == nil {
		return nil, fmt.Errorf("trigger identity %q needs a persona resolver", spec.Type)
	}
	return func(ctx context.Context, msg replybot.Message) (replybot.Identity, error) {
		id, err := resolver.ResolvePersona(ctx, ref, msg.GuildID)
		if err != nil || id == nil {
			return replybot.Identity{}, err
		}
		return *id, nil
	}, nil
}

func buildCondition(n *yaml.Node, state *replybot.State, opts BuildOptions) (replybot.Condition, error) {
	if n == nil {
		return nil, fmt.Errorf("condition is empty")
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: condition must be a mapping", n.Line)
	}
	if len(n.Content) == 0 {
		return nil, fmt.Errorf("line %d: condition is empty", n.Line)
	}
	conds := make([]replybot.Condition, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		c, err := buildOne(n.Content[i].Value, n.Content[i+1], state, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", n.Content[i].Line, n.Content[i].Value, err)
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return conditions.And(conds...), nil
}

func buildOne(key string, v *yaml.Node, state *replybot.State, opts BuildOptions) (replybot.Condition, error) {
	switch key {
	case "contains_word":
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return conditions.ContainsWord(s), nil
	case "contains_phrase":
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return conditions.ContainsPhrase(s), nil
	case "matches_regex":
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return conditions.MatchesRegex(s)
	case "from_user":
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return conditions.FromUser(s), nil
	case "in_channel":
		var ids StringList
		if err := v.Decode(&ids); err != nil {
			return nil, err
		}
		return conditions.InChannel(ids...), nil
	case "with_chance":
		var n int
		if err := v.Decode(&n); err != nil {
			return nil, err
		}
		if n < 0 || n > 100 {
			return nil, fmt.Errorf("chance must be within 0-100")
		}
		return conditions.WithChance(n, opts.Rand), nil
	case "from_bot":
		return boolCondition(v, conditions.FromBot())
	case "from_human":
		return boolCondition(v, conditions.FromHuman())
	case "always":
		return boolCondition(v, conditions.Always())
	case "schedule":
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return conditions.DuringSchedule(s, opts.Now)
	case "within":
		var w struct {
			Key      string `yaml:"key"`
			Duration string `yaml:"duration"`
		}
		if err := v.Decode(&w); err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(strings.TrimSpace(w.Duration))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("within.duration must be a positive duration")
		}
		if strings.TrimSpace(w.Key) == "" {
			return nil, fmt.Errorf("within.key is required")
		}
		return conditions.WithinTimeframeOf(state, w.Key, d, opts.Now), nil
	case "all_of", "any_of", "none_of":
		children, err := buildList(v, state, opts)
		if err != nil {
			return nil, err
		}
		switch key {
		case "all_of":
			return conditions.And(children...), nil
		case "any_of":
			return conditions.Or(opts.Logger, children...), nil
		default:
			return conditions.Not(conditions.Or(opts.Logger, children...)), nil
		}
	case "not":
		inner, err := buildCondition(v, state, opts)
		if err != nil {
			return nil, err
		}
		return conditions.Not(inner), nil
	default:
		return nil, fmt.Errorf("unknown condition (known: %s)", strings.Join(ConditionKeys, ", "))
	}
}

func buildList(v *yaml.Node, state *replybot.State, opts BuildOptions) ([]replybot.Condition, error) {
	if v.Kind != yaml.SequenceNode || len(v.Content) == 0 {
		return nil, fmt.Errorf("expected a non-empty list of conditions")
	}
	out := make([]replybot.Condition, 0, len(v.Content))
	for _, child := range v.Content {
		c, err := buildCondition(child, state, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func scalar(v *yaml.Node) (string, error) {
	if v.Kind != yaml.ScalarNode || strings.TrimSpace(v.Value) == "" {
		return "", fmt.Errorf("expected a non-empty string")
	}
	return strings.TrimSpace(v.Value), nil
}

func boolCondition(v *yaml.Node, c replybot.Condition) (replybot.Condition, error) {
	var b bool
	if err := v.Decode(&b); err != nil {
		return nil, err
	}
	if b {
		return c, nil
	}
	return conditions.Not(c), nil
}
