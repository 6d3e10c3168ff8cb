package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

const DefaultTTL = time.Hour

type Options struct {
	TTL      time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
	// Strategies replaces the default audience-local then global chain.
	Strategies []Strategy

	afterFunc afterFunc
}

// Service maps personas to display identities per audience. A nil result
// means the caller must not speak.
type Service struct {
	personas   PersonaDirectory
	strategies []Strategy
	cache      *cache
	logger     *slog.Logger
	observer   Observer
}

func NewService(personas PersonaDirectory, members MemberDirectory) *Service {
	return NewServiceWithOptions(personas, members, Options{})
}

func NewServiceWithOptions(personas PersonaDirectory, members MemberDirectory, opts Options) *Service {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	af := opts.afterFunc
	if af == nil {
		af = realAfterFunc
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	strategies := opts.Strategies
	if len(strategies) == 0 && members != nil {
		strategies = DefaultStrategies(members)
	}
	return &Service{
		personas:   personas,
		strategies: strategies,
		cache:      newCache(ttl, now, af),
		logger:     logger,
		observer:   opts.Observer,
	}
}

// Resolve returns the identity persona presents in audienceID, or nil.
func (s *Service) Resolve(ctx context.Context, persona, audienceID string, forceRefresh bool) *replybot.Identity {
	if s == nil {
		return nil
	}
	persona = strings.TrimSpace(persona)
	audienceID = strings.TrimSpace(audienceID)
	if persona == "" {
		return nil
	}
	key := personaKey(persona, audienceID)
	if id, ok := s.lookup(key, forceRefresh); ok {
		return &id
	}
	if s.personas == nil {
		s.logger.Warn("identity_persona_directory_missing", "persona", persona)
		return nil
	}
	memberID, ok, err := s.personas.LookupUnderlyingIdentity(ctx, persona)
	if err != nil {
		s.logger.Warn("identity_persona_lookup_error", "persona", persona, "error", err.Error())
		return nil
	}
	memberID = strings.TrimSpace(memberID)
	if !ok || memberID == "" {
		s.logger.Info("identity_persona_not_found", "persona", persona)
		return nil
	}
	return s.resolveAndCache(ctx, key, memberID, audienceID)
}

// ResolveMember resolves a member directly, skipping the persona directory.
func (s *Service) ResolveMember(ctx context.Context, memberID, audienceID string, forceRefresh bool) *replybot.Identity {
	if s == nil {
		return nil
	}
	memberID = strings.TrimSpace(memberID)
	audienceID = strings.TrimSpace(audienceID)
	if memberID == "" {
		return nil
	}
	key := memberKey(memberID, audienceID)
	if id, ok := s.lookup(key, forceRefresh); ok {
		return &id
	}
	return s.resolveAndCache(ctx, key, memberID, audienceID)
}

func (s *Service) ResolvePersona(ctx context.Context, ref replybot.PersonaRef, audienceID string) (*replybot.Identity, error) {
	if s == nil {
		return nil, fmt.Errorf("identity service is not initialized")
	}
	if id := strings.TrimSpace(ref.MemberID); id != "" {
		return s.ResolveMember(ctx, id, audienceID, false), nil
	}
	return s.Resolve(ctx, ref.Name, audienceID, false), nil
}

func (s *Service) ClearCache() {
	if s == nil {
		return
	}
	s.cache.clear()
	s.logger.Info("identity_cache_cleared")
}

// ClearForIdentity drops every entry backed by memberID, in all audiences.
func (s *Service) ClearForIdentity(memberID string) int {
	if s == nil {
		return 0
	}
	n := s.cache.clearMember(strings.TrimSpace(memberID))
	s.logger.Info("identity_cache_cleared_for_member", "member_id", memberID, "entries", n)
	return n
}

func (s *Service) Stats() Stats {
	if s == nil {
		return Stats{Keys: []string{}}
	}
	return s.cache.stats()
}

func (s *Service) lookup(key string, forceRefresh bool) (replybot.Identity, bool) {
	if forceRefresh {
		return replybot.Identity{}, false
	}
	id, ok := s.cache.get(key)
	if s.observer != nil {
		s.observer.IdentityCacheLookup(ok)
	}
	return id, ok
}

func (s *Service) resolveAndCache(ctx context.Context, key, memberID, audienceID string) *replybot.Identity {
	req := Request{MemberID: memberID, AudienceID: audienceID}
	for _, st := range s.strategies {
		id, found, err := st.Resolve(ctx, req)
		if err != nil {
			s.logger.Warn("identity_strategy_error", "strategy", st.Name(), "member_id", memberID, "audience_id", audienceID, "error", err.Error())
			continue
		}
		if !found || !id.Complete() {
			s.logger.Debug("identity_strategy_miss", "strategy", st.Name(), "member_id", memberID, "audience_id", audienceID)
			continue
		}
		s.cache.put(key, memberID, id)
		return &id
	}
	s.logger.Info("identity_unresolved", "member_id", memberID, "audience_id", audienceID)
	return nil
}

func personaKey(persona, audienceID string) string {
	return strings.ToLower(persona) + "|" + audienceID
}

func memberKey(memberID, audienceID string) string {
	return "member:" + memberID + "|" + audienceID
}
