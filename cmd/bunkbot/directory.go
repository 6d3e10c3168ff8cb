package main

import (
	"encoding/json"
	"os"

	"github.com/andrewgari/starbunk-js-sub002/internal/clifmt"
	"github.com/andrewgari/starbunk-js-sub002/internal/directory"
	"github.com/andrewgari/starbunk-js-sub002/internal/statepaths"
	"github.com/spf13/cobra"
)

func newDirectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage the persona and member directory",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <seed.yaml>",
		Short: "Upsert personas, users and guild members from a YAML seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := directory.ParseSeed(f)
			if err != nil {
				return err
			}
			store, err := directory.Open(statepaths.DirectoryDBPath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			res, err := store.Import(cmd.Context(), seed)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "personas",
		Short: "List known personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := directory.Open(statepaths.DirectoryDBPath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			personas, err := store.ListPersonas(cmd.Context())
			if err != nil {
				return err
			}
			tbl := &clifmt.Table{
				Title:        "Personas",
				DetailHeader: "MEMBER",
				Empty:        "No personas. Seed them with `bunkbot directory import`.",
			}
			for _, p := range personas {
				tbl.Add(p.Name, p.MemberID, clifmt.RowActive)
			}
			tbl.Render(cmd.OutOrStdout())
			return nil
		},
	})
	return cmd
}
