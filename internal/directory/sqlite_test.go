package directory

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andrewgari/starbunk-js-sub002/identity"
	"github.com/google/go-cmp/cmp"
)

const seedYAML = `
personas:
  - name: Chad
    member_id: "100"
users:
  - member_id: "100"
    global_name: Chad
    global_avatar_url: https://cdn/chad.png
members:
  - guild_id: g1
    member_id: "100"
    nickname: Chadwick
    avatar_url: https://cdn/chad-g1.png
  - guild_id: g2
    member_id: "100"
`

func openSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "directory.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed() error = %v", err)
	}
	res, err := s.Import(context.Background(), seed)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if diff := cmp.Diff(ImportResult{Personas: 1, Users: 1, Members: 2}, res); diff != "" {
		t.Fatalf("Import() mismatch (-want +got):\n%s", diff)
	}
	return s
}

func TestLookups(t *testing.T) {
	t.Parallel()

	s := openSeeded(t)
	ctx := context.Background()

	id, ok, err := s.LookupUnderlyingIdentity(ctx, "chad")
	if err != nil || !ok || id != "100" {
		t.Fatalf("LookupUnderlyingIdentity(chad) = %q, %v, %v", id, ok, err)
	}
	if _, ok, _ := s.LookupUnderlyingIdentity(ctx, "nobody"); ok {
		t.Fatalf("LookupUnderlyingIdentity(nobody) found")
	}

	p, ok, err := s.LookupAudienceLocalIdentity(ctx, "g1", "100")
	if err != nil || !ok {
		t.Fatalf("LookupAudienceLocalIdentity(g1) = %v, %v", ok, err)
	}
	want := identity.MemberProfile{Nickname: "Chadwick", AvatarURL: "https://cdn/chad-g1.png", GlobalName: "Chad", GlobalAvatarURL: "https://cdn/chad.png"}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := s.LookupAudienceLocalIdentity(ctx, "g9", "100"); ok {
		t.Fatalf("LookupAudienceLocalIdentity(g9) found")
	}
	g, ok, err := s.LookupGlobalIdentity(ctx, "100")
	if err != nil || !ok || g.GlobalName != "Chad" {
		t.Fatalf("LookupGlobalIdentity() = %+v, %v, %v", g, ok, err)
	}
}

func TestDirectoryBacksIdentityService(t *testing.T) {
	t.Parallel()

	s := openSeeded(t)
	svc := identity.NewServiceWithOptions(s, s, identity.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := context.Background()

	got := svc.Resolve(ctx, "Chad", "g2", false)
	if got == nil || got.DisplayName != "Chad" || got.AvatarURL != "https://cdn/chad.png" {
		t.Fatalf("Resolve(g2) = %+v", got)
	}
	got = svc.Resolve(ctx, "Chad", "g9", false)
	if got == nil || got.DisplayName != "Chad" {
		t.Fatalf("Resolve(g9) = %+v, want global fallback", got)
	}
	svc.ClearCache()
}

func TestPutValidates(t *testing.T) {
	t.Parallel()

	s := openSeeded(t)
	ctx := context.Background()
	if err := s.PutPersona(ctx, Persona{Name: "x"}); err == nil {
		t.Fatalf("PutPersona() without member expected error")
	}
	if err := s.PutPersona(ctx, Persona{Name: "CHAD", MemberID: "101"}); err != nil {
		t.Fatalf("PutPersona() error = %v", err)
	}
	personas, err := s.ListPersonas(ctx)
	if err != nil {
		t.Fatalf("ListPersonas() error = %v", err)
	}
	if len(personas) != 1 || personas[0].MemberID != "101" {
		t.Fatalf("ListPersonas() = %+v", personas)
	}
	if _, err := ParseSeed(strings.NewReader("unknown: 1\n")); err == nil {
		t.Fatalf("ParseSeed() with unknown field expected error")
	}
}
