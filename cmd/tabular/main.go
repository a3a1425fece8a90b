// Command tabular runs the inference engines against a local CSV file.
//
//	tabular preview data.csv
//	tabular reduct data.csv --decision play --output table
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabinfer/internal/config"
	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/logging"
)

var (
	outputFormat string
	logLevel     string

	service *core.Service
)

var rootCmd = &cobra.Command{
	Use:           "tabular",
	Short:         "Clustering, classification and rough-set analysis of CSV tables",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "json" && outputFormat != "table" {
			return fmt.Errorf("--output must be json or table, got %q", outputFormat)
		}
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		logging.SetupWriter(os.Stderr, level, cfg.Logging.Format)
		service = core.NewService(cfg, nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or table")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tabular:", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		os.Exit(1)
	}
}
