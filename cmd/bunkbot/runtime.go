package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/delivery"
	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/identity"
	"github.com/andrewgari/starbunk-js-sub002/internal/blacklist"
	"github.com/andrewgari/starbunk-js-sub002/internal/botconfig"
	"github.com/andrewgari/starbunk-js-sub002/internal/directory"
	"github.com/andrewgari/starbunk-js-sub002/internal/discordclient"
	"github.com/andrewgari/starbunk-js-sub002/internal/metrics"
	"github.com/andrewgari/starbunk-js-sub002/internal/statepaths"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/spf13/viper"
)

type runtimeOptions struct {
	Logger *slog.Logger
	// Transport overrides the Discord transport built from config.
	Transport delivery.Transport
}

// appRuntime holds everything a running dispatcher needs.
type appRuntime struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	directory *directory.Store
	identity  *identity.Service
	blacklist blacklist.Store
	processor *dispatch.Processor
	loader    *botconfig.Loader
}

func newRuntime(opts runtimeOptions) (_ *appRuntime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &appRuntime{logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	replybot.SetDebugMode(viper.GetBool("debug.enabled"))
	replybot.SetTestPersona(viper.GetString("debug.test_persona"))
	if replybot.DebugMode() {
		logger.Warn("debug_mode_enabled", "test_persona", replybot.TestPersona())
	}

	rt.directory, err = directory.Open(statepaths.DirectoryDBPath())
	if err != nil {
		return nil, err
	}
	rt.identity = identity.NewServiceWithOptions(rt.directory, rt.directory, identity.Options{
		TTL:      viper.GetDuration("identity.ttl"),
		Logger:   logger,
		Observer: rt.metrics,
	})

	rt.blacklist, err = openBlacklist()
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = discordTransportFromViper()
	}
	adapter, err := delivery.NewAdapter(delivery.AdapterOptions{
		Transport: transport,
		Rate:      viper.GetFloat64("delivery.rate"),
		Burst:     viper.GetInt("delivery.burst"),
		Observer:  rt.metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	policy := senderPolicyFromViper()
	pipeline := &replybot.Pipeline{
		Resolver:  rt.identity,
		Blacklist: rt.blacklist,
		Policy:    policy,
		Logger:    logger,
	}
	rt.processor, err = dispatch.NewProcessor(dispatch.ProcessorOptions{
		Evaluator: pipeline,
		Sender:    adapter,
		Policy:    policy,
		Admission: admissionFromViper(),
		Breaker: dispatch.BreakerConfig{
			MaxFailures:  viper.GetInt("breaker.max_failures"),
			ResetTimeout: viper.GetDuration("breaker.reset_timeout"),
		},
		Observer:       rt.metrics,
		Logger:         logger,
		MaxConcurrency: viper.GetInt("server.max_concurrency"),
	})
	if err != nil {
		return nil, err
	}

	rt.loader, err = botconfig.NewLoader(botconfig.LoaderOptions{
		Path:        statepaths.PluginsDir(),
		UnitTimeout: viper.GetDuration("plugins.load_timeout"),
		Build:       botconfig.BuildOptions{Resolver: rt.identity},
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// loadPlugins replaces the processor's plugin set. Unit failures are logged by
// the loader and do not fail the call.
func (rt *appRuntime) loadPlugins(ctx context.Context) error {
	res, err := rt.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load plugins from %s: %w", rt.loader.Path(), err)
	}
	rt.processor.SetPlugins(res.Plugins)
	return nil
}

func (rt *appRuntime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.blacklist != nil {
		errs = append(errs, rt.blacklist.Close())
	}
	if rt.directory != nil {
		errs = append(errs, rt.directory.Close())
	}
	if rt.identity != nil {
		rt.identity.ClearCache()
	}
	return errors.Join(errs...)
}

func openBlacklist() (blacklist.Store, error) {
	switch backend := strings.ToLower(strings.TrimSpace(viper.GetString("blacklist.backend"))); backend {
	case "", "pebble":
		return blacklist.OpenPebble(statepaths.BlacklistDir(), nil)
	case "memory":
		return blacklist.NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown blacklist.backend: %s", backend)
	}
}

func discordTransportFromViper() *discordclient.WebhookTransport {
	client := discordclient.New(
		&http.Client{Timeout: viper.GetDuration("discord.http_timeout")},
		viper.GetString("discord.base_url"),
		viper.GetString("discord.bot_token"),
	)
	return discordclient.NewWebhookTransport(client, viper.GetStringMapString("discord.webhooks"))
}

func senderPolicyFromViper() replybot.SenderPolicy {
	return replybot.SenderPolicy{
		SelfID:          strings.TrimSpace(viper.GetString("self_id")),
		ExcludedIDs:     viper.GetStringSlice("excluded.ids"),
		ExcludedNames:   viper.GetStringSlice("excluded.names"),
		ExcludeWebhooks: viper.GetBool("excluded.webhooks"),
	}
}

// admissionFromViper builds the global admission filter. It returns nil when
// nothing is configured.
func admissionFromViper() dispatch.Admission {
	channels := map[string]bool{}
	for _, raw := range viper.GetStringSlice("admission.channels") {
		if id := strings.TrimSpace(raw); id != "" {
			channels[id] = true
		}
	}
	skipBlank := viper.GetBool("admission.skip_blank")
	if len(channels) == 0 && !skipBlank {
		return nil
	}
	return func(_ context.Context, msg replybot.Message) bool {
		if skipBlank && strings.TrimSpace(msg.Content) == "" {
			return false
		}
		if len(channels) > 0 && !channels[strings.TrimSpace(msg.ChannelID)] {
			return false
		}
		return true
	}
}
