package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	configFile string
	viper      *viper.Viper

	// logOutput overrides stderr for tests.
	logOutput io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{viper: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "steam-monitor",
		Short:         "Track Steam apps and get notified about new updates",
		Long:          "steam-monitor keeps a list of Steam apps, refreshes their news timestamp and player count through a chain of HTTP relays, and sends a notification when an app posts new news.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.String("store", "", "store backend: redis, file, memory")
	flags.String("store-path", "", "tracking set file for the file backend")
	flags.String("redis-addr", "", "redis address")

	bind := map[string]string{
		"log.level":     "log-level",
		"log.pretty":    "log-pretty",
		"store.backend": "store",
		"store.path":    "store-path",
		"redis.addr":    "redis-addr",
	}
	for key, flag := range bind {
		_ = opts.viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newServeCmd(opts),
		newRefreshCmd(opts),
		newAddCmd(opts),
		newImportCmd(opts),
		newRemoveCmd(opts),
		newListCmd(opts),
	)

	return rootCmd
}
