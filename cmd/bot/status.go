package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okiru-neo/okiru-bot/config"
)

// statusCmd печатает состояние запущенного serve.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print scheduler, bot, store and state status of the running serve process",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig((*config.Config).ValidateAdminClient)
	if err != nil {
		return err
	}

	status, err := newAdminClient(cfg).Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
