package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/internal/botconfig"
	"github.com/andrewgari/starbunk-js-sub002/internal/clifmt"
	"github.com/andrewgari/starbunk-js-sub002/internal/logutil"
	"github.com/andrewgari/starbunk-js-sub002/internal/statepaths"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect reply bot definitions",
	}
	cmd.AddCommand(newPluginsValidateCmd())
	return cmd
}

func newPluginsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Load plugin definitions and report every invalid unit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			path := statepaths.PluginsDir()
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				path = args[0]
			}
			loader, err := botconfig.NewLoader(botconfig.LoaderOptions{
				Path:        path,
				UnitTimeout: viper.GetDuration("plugins.load_timeout"),
				Build:       botconfig.BuildOptions{Resolver: offlineResolver{}},
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			res, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}

			bots := &clifmt.Table{
				Title:      "Reply bots",
				Empty:      "No reply bots found in " + loader.Path(),
				MutedLabel: "disabled",
			}
			for _, p := range res.Plugins {
				state := clifmt.RowActive
				if p.Disabled {
					state = clifmt.RowMuted
				}
				bots.Add(p.Name, pluginDetail(p), state)
			}
			bots.Render(cmd.OutOrStdout())
			if len(res.Failures) == 0 {
				return nil
			}
			failures := &clifmt.Table{Title: "Failures", KeyHeader: "FILE", DetailHeader: "ERROR"}
			for _, f := range res.Failures {
				failures.Add(f.Path, f.Err.Error(), clifmt.RowFailed)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			failures.Render(cmd.OutOrStdout())
			return fmt.Errorf("%d plugin unit(s) failed to load", len(res.Failures))
		},
	}
}

func pluginDetail(p *replybot.Plugin) string {
	parts := []string{}
	if d := strings.TrimSpace(p.Description); d != "" {
		parts = append(parts, d)
	}
	parts = append(parts, fmt.Sprintf("[%d trigger(s), rate %d%%]", len(p.Triggers), p.ResponseRate))
	if p.Disabled {
		parts = append(parts, "[disabled]")
	}
	return strings.Join(parts, " ")
}

// offlineResolver satisfies trigger identity wiring during validation. It is
// never asked to resolve because no message is processed.
type offlineResolver struct{}

func (offlineResolver) ResolvePersona(context.Context, replybot.PersonaRef, string) (*replybot.Identity, error) {
	return nil, nil
}
