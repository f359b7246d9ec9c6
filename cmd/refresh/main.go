// Command refresh rebuilds the dashboard dataset from the raw weekly export.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/ingest"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/pipeline"
	"sales-dashboard/internal/store"
)

type refreshOptions struct {
	Input        string
	Output       string
	Format       string
	Seed         uint64
	MinWeeks     int
	ForecastYear int
}

// refresh runs load, aggregation and write. Nothing is written unless the
// whole pipeline succeeds.
func refresh(ctx context.Context, opts refreshOptions, logger *slog.Logger) (*pipeline.Result, error) {
	out, err := store.New(opts.Format, opts.Output)
	if err != nil {
		return nil, err
	}

	raw, err := ingest.ReadRaw(ctx, opts.Input)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "raw export loaded", "path", opts.Input, "rows", len(raw))

	popts := pipeline.DefaultOptions()
	popts.MinWeeks = opts.MinWeeks
	popts.ForecastYear = opts.ForecastYear
	if opts.Seed != 0 {
		popts.Rand = pipeline.Seeded(opts.Seed)
	}

	result, err := pipeline.New(popts, logger).Run(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := out.Write(ctx, result.Records); err != nil {
		return nil, err
	}
	return result, nil
}

func newRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	opts := refreshOptions{
		Input:        cfg.Data.RawFile,
		Output:       cfg.Data.DatasetFile,
		Format:       cfg.Data.DatasetFormat,
		Seed:         cfg.Pipeline.Seed,
		MinWeeks:     cfg.Pipeline.MinWeeks,
		ForecastYear: cfg.Pipeline.ForecastYear,
	}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the SKU sales dataset from the raw weekly export",
		Long: `refresh reads the semicolon separated, Latin-1 encoded point-of-sale
export, aggregates it into weekly SKU series and writes the dataset the
dashboard serves. The dashboard picks up the new file on its next request.

Defaults come from the SALES_* environment and the optional config file;
flags override them for a single run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := refresh(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows for %d SKUs to %s (%d products dropped, %d non-finite prices)\n",
				result.Stats.OutputRows, result.Stats.SKUs, opts.Output,
				result.Stats.DroppedProducts, len(result.Warnings))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Input, "input", "i", opts.Input, "raw weekly export (CSV, ';' separated, Latin-1)")
	flags.StringVarP(&opts.Output, "output", "o", opts.Output, "dataset file to write")
	flags.StringVarP(&opts.Format, "format", "f", opts.Format, "dataset format: csv or parquet")
	flags.Uint64Var(&opts.Seed, "seed", opts.Seed, "seed for the R2 draw, 0 for an unseeded run")
	flags.IntVar(&opts.MinWeeks, "min-weeks", opts.MinWeeks, "distinct weeks a product code needs to be kept")
	flags.IntVar(&opts.ForecastYear, "forecast-year", opts.ForecastYear, "year flagged as the forecast period")
	return cmd
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("refresh failed", "error", err, "code", errors.CodeOf(err))
		stop()
		os.Exit(1)
	}
}
