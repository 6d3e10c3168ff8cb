package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/andrewgari/starbunk-js-sub002/internal/botconfig"
	"github.com/andrewgari/starbunk-js-sub002/internal/diagserver"
	"github.com/andrewgari/starbunk-js-sub002/internal/ingest"
	"github.com/andrewgari/starbunk-js-sub002/internal/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reply dispatcher with its HTTP ingest and diagnostics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(runtimeOptions{Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.loadPlugins(ctx); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			queue := ingest.NewQueue(gctx, rt.processor, ingest.QueueOptions{
				Size:        viper.GetInt("server.max_queue"),
				Concurrency: viper.GetInt("server.workers"),
				Logger:      logger,
			})
			defer queue.Close()

			if viper.GetBool("plugins.watch") {
				g.Go(func() error {
					return botconfig.Watch(gctx, rt.loader, viper.GetDuration("plugins.watch_debounce"), rt.processor.SetPlugins)
				})
			}

			handler := diagserver.NewRouter(diagserver.Options{
				Breakers:  rt.processor,
				Identity:  rt.identity,
				Ingest:    queue,
				Metrics:   rt.metrics.Handler(),
				AuthToken: viper.GetString("server.auth_token"),
				Logger:    logger,
			})
			g.Go(func() error {
				return diagserver.Serve(gctx, logger, viper.GetString("server.listen"), handler)
			})
			return g.Wait()
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (overrides server.listen).")
	cmd.Flags().String("plugins", "", "Plugin file or directory (overrides plugins.path).")
	cmd.Flags().Bool("watch", true, "Reload plugins when the plugin path changes.")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("plugins.path", cmd.Flags().Lookup("plugins"))
	_ = viper.BindPFlag("plugins.watch", cmd.Flags().Lookup("watch"))

	return cmd
}
