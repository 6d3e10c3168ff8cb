// Package directory is the SQLite-backed persona and member directory used by
// the identity service.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/identity"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS personas (
	name TEXT PRIMARY KEY COLLATE NOCASE,
	member_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	member_id TEXT PRIMARY KEY,
	global_name TEXT NOT NULL DEFAULT '',
	global_avatar_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS members (
	guild_id TEXT NOT NULL,
	member_id TEXT NOT NULL,
	nickname TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (guild_id, member_id)
);
`

type Persona struct {
	Name     string `yaml:"name" json:"name"`
	MemberID string `yaml:"member_id" json:"member_id"`
}

type User struct {
	MemberID        string `yaml:"member_id" json:"member_id"`
	GlobalName      string `yaml:"global_name" json:"global_name"`
	GlobalAvatarURL string `yaml:"global_avatar_url" json:"global_avatar_url"`
}

type Member struct {
	GuildID   string `yaml:"guild_id" json:"guild_id"`
	MemberID  string `yaml:"member_id" json:"member_id"`
	Nickname  string `yaml:"nickname" json:"nickname"`
	AvatarURL string `yaml:"avatar_url" json:"avatar_url"`
}

type Store struct {
	db *sql.DB
}

var (
	_ identity.PersonaDirectory = (*Store)(nil)
	_ identity.MemberDirectory  = (*Store)(nil)
	_ identity.GlobalDirectory  = (*Store)(nil)
)

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("directory path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directory dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create directory schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LookupUnderlyingIdentity(ctx context.Context, persona string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT member_id FROM personas WHERE name = ?`, strings.TrimSpace(persona)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup persona %q: %w", persona, err)
	}
	return id, strings.TrimSpace(id) != "", nil
}

func (s *Store) LookupAudienceLocalIdentity(ctx context.Context, audienceID, memberID string) (identity.MemberProfile, bool, error) {
	var p identity.MemberProfile
	err := s.db.QueryRowContext(ctx, `
SELECT m.nickname, m.avatar_url, COALESCE(u.global_name, ''), COALESCE(u.global_avatar_url, '')
FROM members m
LEFT JOIN users u ON u.member_id = m.member_id
WHERE m.guild_id = ? AND m.member_id = ?`,
		strings.TrimSpace(audienceID), strings.TrimSpace(memberID),
	).Scan(&p.Nickname, &p.AvatarURL, &p.GlobalName, &p.GlobalAvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.MemberProfile{}, false, nil
	}
	if err != nil {
		return identity.MemberProfile{}, false, fmt.Errorf("lookup member %s in %s: %w", memberID, audienceID, err)
	}
	return p, true, nil
}

func (s *Store) LookupGlobalIdentity(ctx context.Context, memberID string) (identity.MemberProfile, bool, error) {
	var p identity.MemberProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT global_name, global_avatar_url FROM users WHERE member_id = ?`,
		strings.TrimSpace(memberID),
	).Scan(&p.GlobalName, &p.GlobalAvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.MemberProfile{}, false, nil
	}
	if err != nil {
		return identity.MemberProfile{}, false, fmt.Errorf("lookup user %s: %w", memberID, err)
	}
	return p, true, nil
}

func (s *Store) PutPersona(ctx context.Context, p Persona) error {
	return putPersona(ctx, s.db, p)
}

func (s *Store) PutUser(ctx context.Context, u User) error {
	return putUser(ctx, s.db, u)
}

func (s *Store) PutMember(ctx context.Context, m Member) error {
	return putMember(ctx, s.db, m)
}

func (s *Store) ListPersonas(ctx context.Context) ([]Persona, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, member_id FROM personas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Persona{}
	for rows.Next() {
		var p Persona
		if err := rows.Scan(&p.Name, &p.MemberID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putPersona(ctx context.Context, db execer, p Persona) error {
	name := strings.TrimSpace(p.Name)
	id := strings.TrimSpace(p.MemberID)
	if name == "" || id == "" {
		return fmt.Errorf("persona name and member_id are required")
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO personas (name, member_id) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET member_id = excluded.member_id`, name, id)
	return err
}

func putUser(ctx context.Context, db execer, u User) error {
	id := strings.TrimSpace(u.MemberID)
	if id == "" {
		return fmt.Errorf("user member_id is required")
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO users (member_id, global_name, global_avatar_url) VALUES (?, ?, ?)
ON CONFLICT(member_id) DO UPDATE SET global_name = excluded.global_name, global_avatar_url = excluded.global_avatar_url`,
		id, strings.TrimSpace(u.GlobalName), strings.TrimSpace(u.GlobalAvatarURL))
	return err
}

func putMember(ctx context.Context, db execer, m Member) error {
	guild := strings.TrimSpace(m.GuildID)
	id := strings.TrimSpace(m.MemberID)
	if guild == "" || id == "" {
		return fmt.Errorf("member guild_id and member_id are required")
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO members (guild_id, member_id, nickname, avatar_url) VALUES (?, ?, ?, ?)
ON CONFLICT(guild_id, member_id) DO UPDATE SET nickname = excluded.nickname, avatar_url = excluded.avatar_url`,
		guild, id, strings.TrimSpace(m.Nickname), strings.TrimSpace(m.AvatarURL))
	return err
}
