package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"catalog-harvester/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	cfg        Config
	tel        telemetry.Telemetry
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "harvester.json5", "The config file to read, <name>.local.json5 is merged over it.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging and request dumps.")
}

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "harvester collects records and documents from paginated online catalogs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)

		var err error
		cfg, err = LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		tel, err = telemetry.SetupFromEnv(cmd.Context(), "harvester")
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}
		if cfg.PerfStatsSec > 0 {
			telemetry.InstrumentPerfStats(cmd.Context(), time.Duration(cfg.PerfStatsSec)*time.Second)
		}
		return nil
	},
}

func flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	flushTelemetry()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
