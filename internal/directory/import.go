package directory

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout accepted by Import.
type Seed struct {
	Personas []Persona `yaml:"personas"`
	Users    []User    `yaml:"users"`
	Members  []Member  `yaml:"members"`
}

type ImportResult struct {
	Personas int `json:"personas"`
	Users    int `json:"users"`
	Members  int `json:"members"`
}

func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("decode directory seed: %w", err)
	}
	return seed, nil
}

// Import upserts every record in one transaction.
func (s *Store) Import(ctx context.Context, seed Seed) (ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var res ImportResult
	for _, p := range seed.Personas {
		if err := putPersona(ctx, tx, p); err != nil {
			return ImportResult{}, fmt.Errorf("persona %q: %w", p.Name, err)
		}
		res.Personas++
	}
	for _, u := range seed.Users {
		if err := putUser(ctx, tx, u); err != nil {
			return ImportResult{}, fmt.Errorf("user %q: %w", u.MemberID, err)
		}
		res.Users++
	}
	for _, m := range seed.Members {
		if err := putMember(ctx, tx, m); err != nil {
			return ImportResult{}, fmt.Errorf("member %q in %q: %w", m.MemberID, m.GuildID, err)
		}
		res.Members++
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}
