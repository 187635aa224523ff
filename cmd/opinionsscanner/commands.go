package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"OpinionsScanner/internal/app"
	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/logging"
	"OpinionsScanner/internal/scanner"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opinionsscanner",
		Short: "Watch the court opinions table and forward new documents",
		Long: `opinionsscanner drives the court's opinions table in a headless browser,
collects document links for a day and posts each one to a webhook. URLs the
webhook does not acknowledge are kept in a ledger and retried on the next run.

Example usage:
  opinionsscanner run                          # scan today for the configured origins
  opinionsscanner run --date 01/10/2024 -o PTO # scan a given day and origin
  opinionsscanner flush                        # retry outstanding deliveries only
  opinionsscanner serve                        # HTTP trigger API plus daily schedule`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newFlushCmd(), newServeCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		date    string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan one day and deliver the documents found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				day := a.Today()
				if date != "" {
					parsed, err := time.Parse(scanner.DateLayout, date)
					if err != nil {
						return fmt.Errorf("invalid --date %q, use MM/DD/YYYY", date)
					}
					day = parsed
				}

				codes := make([]domain.OriginCode, 0, len(origins))
				for _, o := range origins {
					code, err := domain.ParseOriginCode(o)
					if err != nil {
						return err
					}
					codes = append(codes, code)
				}

				summary, err := a.RunDay(ctx, day, codes)
				if err != nil {
					return err
				}
				return printSummary(summary)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to scan as MM/DD/YYYY (default: today)")
	cmd.Flags().StringSliceVarP(&origins, "origin", "o", nil, "origin codes to select (default: scan.origins)")
	return cmd
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Retry outstanding deliveries without scanning",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				summary, err := a.Flush(ctx)
				if err != nil {
					return err
				}
				return printSummary(summary)
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger API and run on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}
}

// withApp loads configuration, builds the application and cancels on SIGINT/SIGTERM.
func withApp(parent context.Context, fn func(context.Context, *app.Application) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := fn(ctx, application); err != nil {
		logger.Error("application stopped", "error", err)
		return err
	}
	return nil
}

func printSummary(summary domain.RunSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Message string `json:"message"`
		domain.RunSummary
	}{Message: summary.Message(), RunSummary: summary})
}
