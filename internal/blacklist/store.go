// Package blacklist stores per-guild sender blocks consulted before any
// trigger runs.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrClosed       = errors.New("blacklist store is closed")
	ErrInvalidEntry = errors.New("guild_id and user_id are required")
)

type Entry struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	AddedAt   time.Time `json:"added_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

type Store interface {
	IsBlacklisted(ctx context.Context, guildID, userID string) (bool, error)
	// Add blocks userID in guildID. A zero ttl never expires.
	Add(ctx context.Context, guildID, userID string, ttl time.Duration) error
	Remove(ctx context.Context, guildID, userID string) error
	List(ctx context.Context, guildID string) ([]Entry, error)
	Close() error
}

const keyPrefix = "blacklist:"

// Key formats the storage key for one guild and user.
func Key(guildID, userID string) string {
	return keyPrefix + strings.TrimSpace(guildID) + ":" + strings.TrimSpace(userID)
}

func guildPrefix(guildID string) string {
	return keyPrefix + strings.TrimSpace(guildID) + ":"
}

func normalizeIDs(guildID, userID string) (string, string, error) {
	guildID = strings.TrimSpace(guildID)
	userID = strings.TrimSpace(userID)
	if guildID == "" || userID == "" {
		return "", "", ErrInvalidEntry
	}
	if strings.Contains(guildID, ":") {
		return "", "", fmt.Errorf("guild_id must not contain ':'")
	}
	return guildID, userID, nil
}

func newEntry(guildID, userID string, now time.Time, ttl time.Duration) Entry {
	e := Entry{GuildID: guildID, UserID: userID, AddedAt: now.UTC()}
	if ttl > 0 {
		e.ExpiresAt = now.UTC().Add(ttl)
	}
	return e
}
