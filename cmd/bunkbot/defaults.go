package main

import (
	"time"

	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/identity"
	"github.com/andrewgari/starbunk-js-sub002/internal/botconfig"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Global
	viper.SetDefault("file_state_dir", "~/.bunkbot")
	viper.SetDefault("self_id", "")

	// Senders every plugin ignores.
	viper.SetDefault("excluded.ids", []string{})
	viper.SetDefault("excluded.names", []string{"covabot", "cova-bot", "cova_bot"})
	viper.SetDefault("excluded.webhooks", false)

	viper.SetDefault("admission.channels", []string{})
	viper.SetDefault("admission.skip_blank", true)

	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.test_persona", "")

	// Plugins
	viper.SetDefault("plugins.path", "plugins")
	viper.SetDefault("plugins.load_timeout", botconfig.DefaultUnitTimeout)
	viper.SetDefault("plugins.watch", true)
	viper.SetDefault("plugins.watch_debounce", botconfig.DefaultDebounce)

	viper.SetDefault("breaker.max_failures", dispatch.DefaultMaxFailures)
	viper.SetDefault("breaker.reset_timeout", dispatch.DefaultResetTimeout)

	viper.SetDefault("identity.ttl", identity.DefaultTTL)

	// Blacklist
	viper.SetDefault("blacklist.backend", "pebble")
	viper.SetDefault("blacklist.dir_name", "blacklist")
	viper.SetDefault("blacklist.ttl", time.Duration(0))

	viper.SetDefault("directory.path", "")

	// Discord
	viper.SetDefault("discord.bot_token", "")
	viper.SetDefault("discord.base_url", "https://discord.com/api/v10")
	viper.SetDefault("discord.http_timeout", 30*time.Second)
	viper.SetDefault("discord.webhooks", map[string]string{})

	viper.SetDefault("delivery.rate", 1.0)
	viper.SetDefault("delivery.burst", 5)

	// Server
	viper.SetDefault("server.listen", "127.0.0.1:8787")
	viper.SetDefault("server.auth_token", "")
	viper.SetDefault("server.max_queue", 100)
	viper.SetDefault("server.workers", 4)
	viper.SetDefault("server.max_concurrency", 0)
}
