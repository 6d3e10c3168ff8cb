package botconfig

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

func mustBuild(t *testing.T, doc string, opts BuildOptions) []*replybot.Plugin {
	t.Helper()
	f, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	plugins, err := Build(f, opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plugins
}

func evaluate(t *testing.T, p *replybot.Plugin, m replybot.Message) *replybot.Reply {
	t.Helper()
	reply, err := (&replybot.Pipeline{}).Evaluate(context.Background(), p, m)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return reply
}

func human(content string) replybot.Message {
	return replybot.Message{Content: content, Author: replybot.Author{ID: "u1", Username: "alice"}, ChannelID: "c1", ChannelName: "general", GuildID: "g1"}
}

func TestBuildStaticBotDefaults(t *testing.T) {
	t.Parallel()

	plugins := mustBuild(t, `
reply-bots:
  - name: hold-bot
    identity:
      type: static
      bot_name: HoldBot
      avatar_url: https://example.com/hold.png
    responses: "Hold."
    triggers:
      - name: hold
        conditions:
          contains_word: hold
`, BuildOptions{})
	if len(plugins) != 1 {
		t.Fatalf("plugins = %d, want 1", len(plugins))
	}
	p := plugins[0]
	if p.ResponseRate != 100 || !p.IgnoreBots || p.IgnoreHumans {
		t.Fatalf("defaults = rate %d ignore_bots %v ignore_humans %v", p.ResponseRate, p.IgnoreBots, p.IgnoreHumans)
	}
	if reply := evaluate(t, p, human("please hold")); reply == nil || reply.Text != "Hold." || reply.Identity.DisplayName != "HoldBot" {
		t.Fatalf("Evaluate(please hold) = %+v", reply)
	}
	if reply := evaluate(t, p, human("holding")); reply != nil {
		t.Fatalf("Evaluate(holding) = %+v, want nil", reply)
	}
}

func TestBuildIdentityTypes(t *testing.T) {
	t.Parallel()

	plugins := mustBuild(t, `
reply-bots:
  - name: persona-bot
    identity: { type: persona, persona: Chad }
    responses: "hey"
    triggers:
      - conditions: { always: true }
  - name: mimic-bot
    identity:
      type: mimic
      as_member: "123456789012345678"
    responses: "Copying you!"
    triggers:
      - conditions:
          always: true
`, BuildOptions{})
	if plugins[0].Persona.Name != "Chad" {
		t.Fatalf("persona = %+v", plugins[0].Persona)
	}
	if plugins[1].Persona.MemberID != "123456789012345678" {
		t.Fatalf("mimic = %+v", plugins[1].Persona)
	}
	if plugins[0].Triggers[0].Name != "persona-bot-1" {
		t.Fatalf("default trigger name = %q", plugins[0].Triggers[0].Name)
	}
}

func TestBuildComplexConditions(t *testing.T) {
	t.Parallel()

	plugins := mustBuild(t, `
reply-bots:
  - name: banana-bot
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    ignore_bots: false
    triggers:
      - name: venn
        priority: 5
        conditions:
          all_of:
            - contains_word: banana
            - any_of:
                - from_user: "u9"
                - with_chance: 50
        responses: ["Hello {user} in {channel}"]
        template: true
        mark: banana
      - name: follow-up
        conditions:
          within: { key: banana, duration: 2m }
          none_of:
            - contains_phrase: stop
        responses: "still bananas?"
`, BuildOptions{Rand: func() float64 { return 0.2 }, Now: func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}})
	p := plugins[0]

	if reply := evaluate(t, p, human("hi")); reply != nil {
		t.Fatalf("Evaluate(hi) before mark = %+v, want nil", reply)
	}
	reply := evaluate(t, p, human("BANANA time"))
	if reply == nil || reply.Text != "Hello alice in general" {
		t.Fatalf("Evaluate(banana) = %+v", reply)
	}
	if reply := evaluate(t, p, human("hi")); reply == nil || reply.Trigger != "follow-up" {
		t.Fatalf("Evaluate(hi) after mark = %+v, want follow-up", reply)
	}
	if reply := evaluate(t, p, human("please stop")); reply != nil {
		t.Fatalf("Evaluate(stop) = %+v, want nil", reply)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad_name": `
reply-bots:
  - name: "../Evil"
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { always: true } } ]`,
		"duplicate": `
reply-bots:
  - name: dup
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { always: true } } ]
  - name: dup
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { always: true } } ]`,
		"unknown_condition": `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { sounds_like: y } } ]`,
		"partial_identity": `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B }
    responses: x
    triggers: [ { conditions: { always: true } } ]`,
		"no_responses": `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    triggers: [ { conditions: { always: true } } ]`,
		"bad_schedule": `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { schedule: "every day" } } ]`,
		"random_identity": `
reply-bots:
  - name: a
    identity: { type: random }
    responses: x
    triggers: [ { conditions: { always: true } } ]`,
		"persona_trigger_without_resolver": `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { always: true }, identity: { type: persona, persona: Chad } } ]`,
	}
	for name, doc := range cases {
		f, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%s: Parse() error = %v", name, err)
		}
		if _, err := Build(f, BuildOptions{}); err == nil {
			t.Fatalf("%s: Build() expected error", name)
		}
	}

	f, _ := Parse([]byte(cases["bad_name"]))
	if _, err := Build(f, BuildOptions{}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("Build(bad_name) error = %v, want ErrInvalidName", err)
	}
}

func TestBuildUnknownConditionListsKnownKeys(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(`
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers: [ { conditions: { contains_wrod: hold } } ]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = Build(f, BuildOptions{})
	if err == nil || !strings.Contains(err.Error(), "unknown condition") || !strings.Contains(err.Error(), "contains_word") {
		t.Fatalf("Build() error = %v, want unknown condition listing contains_word", err)
	}
}

type fixedResolver struct{ id *replybot.Identity }

func (r fixedResolver) ResolvePersona(context.Context, replybot.PersonaRef, string) (*replybot.Identity, error) {
	return r.id, nil
}

func TestBuildTriggerPersonaIdentity(t *testing.T) {
	t.Parallel()

	doc := `
reply-bots:
  - name: a
    identity: { type: static, bot_name: B, avatar_url: https://x/b.png }
    responses: x
    triggers:
      - conditions: { always: true }
        identity: { type: persona, persona: Chad }
`
	chad := &replybot.Identity{DisplayName: "Chad", AvatarURL: "https://x/c.png"}
	plugins := mustBuild(t, doc, BuildOptions{Resolver: fixedResolver{id: chad}})
	if reply := evaluate(t, plugins[0], human("x")); reply == nil || reply.Identity != *chad {
		t.Fatalf("Evaluate() = %+v, want Chad identity", reply)
	}

	silent := mustBuild(t, doc, BuildOptions{Resolver: fixedResolver{}})
	if reply := evaluate(t, silent[0], human("x")); reply != nil {
		t.Fatalf("Evaluate() with unresolved trigger persona = %+v, want nil", reply)
	}
}

func TestStringList(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte("reply-bots:\n  - name: a\n    responses: [one, two]\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := strings.Join(f.ReplyBots[0].Responses, ","); got != "one,two" {
		t.Fatalf("Responses = %q", got)
	}
	if _, err := Parse([]byte("reply-bots:\n  - name: a\n    responses: {x: 1}\n")); err == nil {
		t.Fatalf("Parse() with mapping responses expected error")
	}
}
