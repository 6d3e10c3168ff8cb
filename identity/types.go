// Package identity resolves logical personas to audience-local display
// identities and caches the results.
package identity

import (
	"context"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

// MemberProfile is a member as seen in one audience. Nickname and AvatarURL
// are audience-local and may be empty.
type MemberProfile struct {
	Nickname        string
	AvatarURL       string
	GlobalName      string
	GlobalAvatarURL string
}

type PersonaDirectory interface {
	LookupUnderlyingIdentity(ctx context.Context, persona string) (string, bool, error)
}

type MemberDirectory interface {
	LookupAudienceLocalIdentity(ctx context.Context, audienceID, memberID string) (MemberProfile, bool, error)
}

// GlobalDirectory serves identities that are not scoped to an audience.
type GlobalDirectory interface {
	LookupGlobalIdentity(ctx context.Context, memberID string) (MemberProfile, bool, error)
}

type Request struct {
	MemberID   string
	AudienceID string
}

// Strategy is one step of the fallback chain. Not-found and errors both move
// resolution on to the next strategy.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (replybot.Identity, bool, error)
}

type Observer interface {
	IdentityCacheLookup(hit bool)
}

type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}
