package main

import (
	"fmt"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/spf13/cobra"
)

func peersCmd(opts *runOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List recently seen peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := client.LoadClientConfig(opts.configPath)
			if err != nil {
				return err
			}
			dbPath, err := cfg.GetSettingsDBPath()
			if err != nil {
				return err
			}
			settings, err := client.OpenSettings(dbPath)
			if err != nil {
				return err
			}
			defer settings.Close()

			peers, err := settings.RecentPeers(limit)
			if err != nil {
				return fmt.Errorf("failed to read peer history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(peers) == 0 {
				fmt.Fprintln(out, "No peers seen yet")
				return nil
			}

			for _, p := range peers {
				fmt.Fprintf(out, "%-16s %-20s %-22s %s\n", p.Name, p.Host, p.Addr, client.FormatRelativeTime(p.LastSeen))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of peers to list")

	return cmd
}

func configCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or reset the configuration file",
	}

	var backup bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the configuration with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.ResetConfigToDefault(opts.configPath, backup); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration reset to defaults: %s\n", opts.configPath)
			return nil
		},
	}
	reset.Flags().BoolVar(&backup, "backup", true, "Keep a dated backup of the current file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), opts.configPath)
		},
	}

	cmd.AddCommand(reset, path)
	return cmd
}
