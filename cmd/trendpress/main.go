package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TrendPress/internal/app"
	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/logging"
	"TrendPress/internal/ports"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "trendpress",
	Short:         "trendpress - turns trending topics into published articles",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, logger, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		defer application.Close()

		report, err := application.RunOnce(ctx)
		if errors.Is(err, ports.ErrLocked) {
			logger.Info("another run is in progress, nothing to do")
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info("run complete",
			zap.Int("ingested", report.Ingested),
			zap.Int("published", len(report.Published)),
		)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on its cron schedule and expose the status API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, logger, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		defer application.Close()

		if err := application.Serve(ctx); err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print every tracked record and its next stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadReadOnly(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger := logging.New(cfg.Logging.Level)
		defer logger.Sync() //nolint:errcheck

		records, err := app.ReadStatus(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		return printStatus(cmd.OutOrStdout(), records)
	},
}

func bootstrap(ctx context.Context) (*app.Application, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init application: %w", err)
	}
	return application, logger, nil
}

func printStatus(out io.Writer, records []domain.Record) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tNEXT STAGE\tPOST\tURL")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.TopicName, domain.NextStage(r), r.RemotePostID, r.PublishURL)
	}
	return w.Flush()
}

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file (defaults to $TRENDPRESS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
