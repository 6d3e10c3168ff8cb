package replybot

import (
	"context"
	"strings"
)

// Identity is the display name and avatar a reply is sent under.
type Identity struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Complete reports whether both fields are set. Partial identities are never
// sent.
func (i Identity) Complete() bool {
	return strings.TrimSpace(i.DisplayName) != "" && strings.TrimSpace(i.AvatarURL) != ""
}

type IdentityFunc func(ctx context.Context, msg Message) (Identity, error)

func FixedIdentity(id Identity) IdentityFunc {
	return func(context.Context, Message) (Identity, error) {
		return id, nil
	}
}

// PersonaRef points at the persona a plugin speaks as. Name is a logical
// persona resolved through the persona directory; MemberID mimics a member
// directly.
type PersonaRef struct {
	Name     string
	MemberID string
}

func (r PersonaRef) IsZero() bool {
	return strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.MemberID) == ""
}

// PersonaResolver returns nil when the persona cannot be presented in the
// audience. Callers must stay silent in that case.
type PersonaResolver interface {
	ResolvePersona(ctx context.Context, ref PersonaRef, audienceID string) (*Identity, error)
}

type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, audienceID, senderID string) (bool, error)
}
