package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okiru-neo/okiru-bot/config"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/postgres"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/sqlite"
)

// migrateCmd управляет схемой хранилища.
var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or list storage migrations",
	Long:      `PostgreSQL supports up, down (one step) and status. SQLite applies its schema on open, so only up and status are available.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig((*config.Config).ValidateStorage)
	if err != nil {
		return err
	}
	action := "up"
	if len(args) == 1 {
		action = args[0]
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.Storage.Driver == config.StorageSQLite {
		if action == "down" {
			return errors.New("migrate down is not supported for sqlite")
		}
		repo, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer repo.Close()
		fmt.Fprintf(out, "sqlite schema is up to date (%s)\n", cfg.Storage.SQLitePath)
		return nil
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()
	migrator := postgres.NewMigrator(conn)

	switch action {
	case "up":
		n, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", "count", n)
		fmt.Fprintf(out, "applied %d migration(s)\n", n)

	case "down":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "rolled back the latest migration")

	case "status":
		migrations, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
		for _, m := range migrations {
			applied := "pending"
			if m.IsApplied {
				applied = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return tw.Flush()
	}
	return nil
}
