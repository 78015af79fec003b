package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/spf13/cobra"
)

// Version information set at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		var cfgErr *client.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "\033[31mConfig error\033[0m in %s:\n%s\n", cfgErr.Path, cfgErr.Error())
			fmt.Fprintln(os.Stderr, "Run `lanchat config reset` to restore the defaults.")
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "lanchat",
		Short: "LAN presence and messaging client",
		Long: `LANChat announces you on the local network over UDP broadcast,
keeps a live list of the peers that answer, and exchanges direct
messages with them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", client.DefaultConfigPath(), "Path to config file")

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "UDP port (overrides config)")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "User name announced to peers (overrides config)")
	cmd.Flags().StringVar(&opts.bind, "bind", "", "Local IPv4 address to bind (overrides config)")
	cmd.Flags().StringVar(&opts.broadcast, "broadcast", "", "Broadcast address for announcements (overrides config)")
	cmd.Flags().StringVar(&opts.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on host:port (overrides config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without the terminal UI, logging to stderr")

	cmd.AddCommand(
		peersCmd(&opts),
		configCmd(&opts),
		versionCmd(),
	)

	return cmd
}
