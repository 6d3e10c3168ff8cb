package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/internal/botconfig"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and the plugin format this build understands",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, _ = fmt.Fprintln(out, strings.TrimSpace(version))
				return nil
			}
			_, _ = fmt.Fprintf(out, "bunkbot %s (%s)\n", strings.TrimSpace(version), runtime.Version())
			if c := strings.TrimSpace(commit); c != "" && c != "none" {
				_, _ = fmt.Fprintf(out, "commit: %s\n", c)
			}
			if d := strings.TrimSpace(date); d != "" && d != "unknown" {
				_, _ = fmt.Fprintf(out, "date: %s\n", d)
			}
			_, _ = fmt.Fprintf(out, "identities: %s\n", strings.Join(botconfig.IdentityTypes, ", "))
			_, _ = fmt.Fprintf(out, "conditions: %s\n", strings.Join(botconfig.ConditionKeys, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version string")
	return cmd
}
