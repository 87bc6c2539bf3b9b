package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/guilddash/internal/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts, cmd)
		},
	}
}

func runMigrate(ctx context.Context, opts *rootOptions, cmd *cobra.Command) error {
	cfg, _, err := opts.load()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	v, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	slog.Info("migrations applied", "driver", cfg.Database.Driver, "version", v)
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}
