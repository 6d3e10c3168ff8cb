package identity

import (
	"context"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

// AudienceLocal prefers the member's audience-local nickname and avatar,
// falling back to the global values field by field.
type AudienceLocal struct {
	Members MemberDirectory
}

func (AudienceLocal) Name() string { return "audience_local" }

func (s AudienceLocal) Resolve(ctx context.Context, req Request) (replybot.Identity, bool, error) {
	if s.Members == nil || strings.TrimSpace(req.AudienceID) == "" {
		return replybot.Identity{}, false, nil
	}
	profile, ok, err := s.Members.LookupAudienceLocalIdentity(ctx, req.AudienceID, req.MemberID)
	if err != nil || !ok {
		return replybot.Identity{}, false, err
	}
	id := replybot.Identity{
		DisplayName: firstNonEmpty(profile.Nickname, profile.GlobalName),
		AvatarURL:   firstNonEmpty(profile.AvatarURL, profile.GlobalAvatarURL),
	}
	return id, id.Complete(), nil
}

// PersonaGlobal uses the member's global name and avatar.
type PersonaGlobal struct {
	Global GlobalDirectory
}

func (PersonaGlobal) Name() string { return "persona_global" }

func (s PersonaGlobal) Resolve(ctx context.Context, req Request) (replybot.Identity, bool, error) {
	if s.Global == nil {
		return replybot.Identity{}, false, nil
	}
	profile, ok, err := s.Global.LookupGlobalIdentity(ctx, req.MemberID)
	if err != nil || !ok {
		return replybot.Identity{}, false, err
	}
	id := replybot.Identity{
		DisplayName: strings.TrimSpace(profile.GlobalName),
		AvatarURL:   strings.TrimSpace(profile.GlobalAvatarURL),
	}
	return id, id.Complete(), nil
}

// DefaultStrategies builds the audience-local then global chain. The global
// step is included only when members also implements GlobalDirectory.
func DefaultStrategies(members MemberDirectory) []Strategy {
	out := []Strategy{AudienceLocal{Members: members}}
	if global, ok := members.(GlobalDirectory); ok {
		out = append(out, PersonaGlobal{Global: global})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
