package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/guilddash/internal/config"
	"github.com/dukerupert/guilddash/internal/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "guilddash",
		Short: "Discord guild administration dashboard API",
		Long: `guilddash serves the HTTP API behind the guild dashboard: Discord
login, admin guild listing, guild stats, and per-guild bot settings.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "guilddash version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to an optional YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads configuration and sets up the default logger from it.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.Setup(cfg.Log.Level, cfg.Log.Format), nil
}
