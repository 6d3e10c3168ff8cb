package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/internal/blacklist"
	"github.com/andrewgari/starbunk-js-sub002/internal/clifmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newBlacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage per-guild sender blocks (pebble backend; stop serve first)",
	}

	add := &cobra.Command{
		Use:   "add <guild_id> <user_id>",
		Short: "Block a user in a guild",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(func(store blacklist.Store) error {
				ttl := flagOrViperDuration(cmd, "ttl", "blacklist.ttl")
				if err := store.Add(cmd.Context(), args[0], args[1], ttl); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "blocked %s in %s\n", strings.TrimSpace(args[1]), strings.TrimSpace(args[0]))
				return nil
			})
		},
	}
	add.Flags().Duration("ttl", 0, "Block duration (0 never expires; defaults to blacklist.ttl).")

	remove := &cobra.Command{
		Use:   "remove <guild_id> <user_id>",
		Short: "Unblock a user in a guild",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(func(store blacklist.Store) error {
				if err := store.Remove(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s in %s\n", strings.TrimSpace(args[1]), strings.TrimSpace(args[0]))
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <guild_id>",
		Short: "List active blocks in a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(func(store blacklist.Store) error {
				entries, err := store.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tbl := &clifmt.Table{
					Title:      "Blacklist " + strings.TrimSpace(args[0]),
					KeyHeader:  "USER",
					Empty:      "No blocked users.",
					MutedLabel: "temporary",
				}
				for _, e := range entries {
					detail, state := "added "+e.AddedAt.Format(time.RFC3339), clifmt.RowActive
					if !e.ExpiresAt.IsZero() {
						detail += ", expires " + e.ExpiresAt.Format(time.RFC3339)
						state = clifmt.RowMuted
					}
					tbl.Add(e.UserID, detail, state)
				}
				tbl.Render(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

func withBlacklist(fn func(blacklist.Store) error) error {
	if strings.EqualFold(strings.TrimSpace(viper.GetString("blacklist.backend")), "memory") {
		return fmt.Errorf("blacklist commands need a persistent backend (blacklist.backend=pebble)")
	}
	store, err := openBlacklist()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}
