package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okiru-neo/okiru-bot/config"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	httpserver "github.com/okiru-neo/okiru-bot/internal/interface/http"
	"github.com/okiru-neo/okiru-bot/pkg/logger"
)

var (
	sweepAt     string
	adminServer string
)

// sweepCmd просит запущенный serve подвести итоги один раз.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Ask the running serve process to run the daily sweep once",
	Long: `Evaluate every group now, advance or reset streaks and send the
announcements, exactly like the scheduled daily_sweep job.

The sweep runs inside the serve process, which owns the group state, via
POST /api/admin/sweep. HTTP_ADMIN_TOKEN must match the server's.

--at evaluates as if it were the given local time, e.g. to replay a missed
sweep: okiru sweep --at 2024-03-15T12:00`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "evaluation instant in APP_TIMEZONE (YYYY-MM-DDTHH:MM)")
	sweepCmd.Flags().StringVar(&adminServer, "server", "", "serve base URL (default derived from HTTP_HOST and HTTP_PORT)")
	statusCmd.Flags().StringVar(&adminServer, "server", "", "serve base URL (default derived from HTTP_HOST and HTTP_PORT)")
}

// newAdminClient строит клиент admin API по конфигурации и флагу --server.
func newAdminClient(cfg *config.Config) *httpserver.AdminClient {
	base := adminServer
	if base == "" {
		base = cfg.HTTP.AdminURL()
	}
	return httpserver.NewAdminClient(base, cfg.HTTP.AdminToken, nil)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig((*config.Config).ValidateAdminClient)
	if err != nil {
		return err
	}

	var at time.Time
	if sweepAt != "" {
		at, err = time.ParseInLocation("2006-01-02T15:04", sweepAt, cfg.Location())
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	report, err := newAdminClient(cfg).Sweep(cmd.Context(), at)
	if errors.Is(err, shared.ErrSweepInProgress) {
		return errors.New("sweep: another sweep is already running")
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	log.Info("sweep finished",
		logger.RunID(report.RunID),
		"groups", report.Groups,
		"skipped", report.Skipped,
		"all_success", report.AllSuccess,
		"some_failed", report.SomeFailed,
		"notify_failures", report.NotifyFailures,
		"save_failures", report.SaveFailures,
		"duration", report.Duration,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d groups evaluated, %d skipped, %d all up, %d missed\n",
		report.RunID, report.Groups, report.Skipped, report.AllSuccess, report.SomeFailed)
	if report.SaveFailures > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d groups not saved yet; serve retries them every FLUSH_INTERVAL\n", report.SaveFailures)
	}
	return nil
}
