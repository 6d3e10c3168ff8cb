// Package botconfig loads reply plugins from YAML definitions.
package botconfig

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is one YAML document holding any number of reply bots.
type File struct {
	ReplyBots []BotSpec `yaml:"reply-bots"`
}

type BotSpec struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Identity     *IdentitySpec `yaml:"identity"`
	Responses    StringList    `yaml:"responses"`
	ResponseRate *int          `yaml:"response_rate"`
	IgnoreBots   *bool         `yaml:"ignore_bots"`
	IgnoreHumans bool          `yaml:"ignore_humans"`
	Disabled     bool          `yaml:"disabled"`
	Triggers     []TriggerSpec `yaml:"triggers"`
}

const (
	IdentityStatic  = "static"
	IdentityPersona = "persona"
	IdentityMimic   = "mimic"
)

// IdentityTypes lists the accepted identity.type values.
var IdentityTypes = []string{IdentityStatic, IdentityPersona, IdentityMimic}

// ConditionKeys lists every key a conditions block may use.
var ConditionKeys = []string{
	"always", "contains_word", "contains_phrase", "matches_regex",
	"from_user", "in_channel", "from_bot", "from_human", "with_chance",
	"schedule", "within", "all_of", "any_of", "none_of", "not",
}

type IdentitySpec struct {
	Type      string `yaml:"type"`
	BotName   string `yaml:"bot_name"`
	AvatarURL string `yaml:"avatar_url"`
	Persona   string `yaml:"persona"`
	AsMember  string `yaml:"as_member"`
}

type TriggerSpec struct {
	Name       string        `yaml:"name"`
	Priority   int           `yaml:"priority"`
	Conditions ConditionSpec `yaml:"conditions"`
	Responses  StringList    `yaml:"responses"`
	// Template enables {user}, {channel} and {content} placeholders.
	Template bool          `yaml:"template"`
	Identity *IdentitySpec `yaml:"identity"`
	// Mark records a time-window mark under this key when the trigger fires.
	Mark string `yaml:"mark"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = StringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", n.Line)
	}
}

// ConditionSpec keeps the raw condition tree; it is compiled by Build.
type ConditionSpec struct {
	node *yaml.Node
}

func (c *ConditionSpec) UnmarshalYAML(n *yaml.Node) error {
	copied := *n
	c.node = &copied
	return nil
}

func (c ConditionSpec) IsZero() bool {
	return c.node == nil || (c.node.Kind == yaml.MappingNode && len(c.node.Content) == 0)
}

func Parse(raw []byte) (File, error) {
	var f File
	if strings.TrimSpace(string(raw)) == "" {
		return f, nil
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("decode reply bots: %w", err)
	}
	return f, nil
}
