// Package main - точка входа бота утренних подъёмов «Okiru».
//
// Участники группы обещают время подъёма, отмечаются утром, и бот раз в день
// подводит итог: если встали все, серия группы растёт.
//
// Команды:
//   - serve   - бот, планировщик и HTTP (probes, webhook, API серий)
//   - sweep   - однократный подсчёт итогов дня через запущенный serve
//   - status  - состояние запущенного serve
//   - migrate - миграции схемы хранилища
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootCmd - корневая команда CLI.
var rootCmd = &cobra.Command{
	Use:   "okiru",
	Short: "Wake-up streak bot for Telegram groups",
	Long: `Okiru keeps a group honest about getting up in the morning.

Members pledge a wake-up time ("7時に起きる"), report when they are up
("おはよう") and may skip one morning a week ("ぐっすり"). Once a day the bot
announces whether everyone made it and how long the group streak is.

Configuration is read from environment variables (see config package).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
