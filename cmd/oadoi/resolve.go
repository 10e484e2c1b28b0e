package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/oadoi/internal/config"
	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
	"github.com/nao1215/oadoi/internal/report"
	"github.com/nao1215/oadoi/internal/resolve"
)

// NewResolveCmd creates the resolve command.
func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [doi...]",
		Short: "Recalculate the open-access status of works",
		Long: `Resolve recalculates the best open-access location of stored works.

Every DOI must have been imported first (see "oadoi import"). The work is
matched against harvested repository records, PubMed Central links and the
landing-page snapshot, and the new response is saved back to the store.

Examples:
  # Resolve one work and print a table
  oadoi resolve 10.1234/abc

  # Refresh the landing-page snapshot first and print JSON
  oadoi resolve --hybrid --json 10.1234/abc

  # Recalculate 500 stored works picked at random, 20 at a time
  oadoi resolve --refresh 500 --batch 20 --csv -o out/refresh.csv

  # Print the flat v1 answer
  oadoi resolve --legacy 10.1234/abc`,
		Args: cobra.ArbitraryArgs,
		RunE: runResolveCmd,
	}

	cmd.Flags().Bool("hybrid", false,
		"Scrape the DOI landing page before recalculating")
	cmd.Flags().Bool("no-green-scrape", false,
		"Do not scrape repository pages of never-matched records")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of works recalculated concurrently")
	cmd.Flags().Duration("unit-timeout", config.DefaultUnitTimeout,
		"Maximum time spent on one work")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each landing-page request")
	cmd.Flags().Int("refresh", 0,
		"Also recalculate this many stored works, ordered by their jitter")

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")
	cmd.Flags().Bool("csv", false, "Output flat CSV rows")
	cmd.Flags().Bool("legacy", false, "Output the flat v1 JSON answer")
	cmd.Flags().Bool("summary", false, "Output the per-work batch results instead of the responses")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to the given file (creates directories if needed)")

	return cmd
}

// resolveOptions holds the flags that do not belong in config.Config.
type resolveOptions struct {
	refresh int
	legacy  bool
	summary bool
}

func buildResolveConfig(cmd *cobra.Command, args []string) (*config.Config, resolveOptions, error) {
	var opts resolveOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if cfg.Hybrid, err = flags.GetBool("hybrid"); err != nil {
		return nil, opts, err
	}
	noGreen, err := flags.GetBool("no-green-scrape")
	if err != nil {
		return nil, opts, err
	}
	cfg.GreenScrape = !noGreen
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, opts, err
	}
	if cfg.UnitTimeout, err = flags.GetDuration("unit-timeout"); err != nil {
		return nil, opts, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, opts, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, opts, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, opts, err
	}
	if cfg.CSVReport, err = flags.GetBool("csv"); err != nil {
		return nil, opts, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, opts, err
	}
	if opts.refresh, err = flags.GetInt("refresh"); err != nil {
		return nil, opts, err
	}
	if opts.legacy, err = flags.GetBool("legacy"); err != nil {
		return nil, opts, err
	}
	if opts.summary, err = flags.GetBool("summary"); err != nil {
		return nil, opts, err
	}

	cfg.Targets = cleanTargets(args)
	return cfg, opts, nil
}

// cleanTargets normalizes DOIs so that they match the stored keys. Values
// that are not DOIs are kept and fail later as unknown works.
func cleanTargets(args []string) []string {
	targets := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		doi := arg
		if clean, err := model.CleanDOI(arg); err == nil {
			doi = clean
		}
		if !seen[doi] {
			seen[doi] = true
			targets = append(targets, doi)
		}
	}
	return targets
}

func runResolveCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildResolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if opts.legacy && reportFormat(cfg) != report.FormatTable && reportFormat(cfg) != report.FormatJSON {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}

	logger := setupLogger(cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.refresh > 0 {
		works, err := store.ListWorksForRefresh(ctx, opts.refresh)
		if err != nil {
			return err
		}
		dois := make([]string, 0, len(works))
		for _, w := range works {
			dois = append(dois, w.DOI)
		}
		cfg.Targets = cleanTargets(append(cfg.Targets, dois...))
	}
	if err := cfg.ValidateTargets(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	engine, err := newEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	output, closeOutput, err := openOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // Best effort on the error path

	if err := runResolve(ctx, cfg, opts, engine, store, output, logger); err != nil {
		return err
	}
	return closeOutput()
}

// runResolve recalculates cfg.Targets and writes the report.
func runResolve(ctx context.Context, cfg *config.Config, opts resolveOptions, engine *resolve.Engine, store *database.Store, output io.Writer, logger *slog.Logger) error {
	logger.Info("starting resolve",
		"targets", len(cfg.Targets),
		"batch_size", cfg.BatchSize,
		"hybrid", cfg.Hybrid,
	)

	bp := pipeline.NewBatchProcessor(
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithUnitTimeout(cfg.UnitTimeout),
		pipeline.WithBatchLogger(logger),
	)
	var mu sync.Mutex
	done := make(map[string]*model.Work, len(cfg.Targets))
	batch := engine.RefreshBatchEach(ctx, store, cfg.Targets, bp, cfg.Hybrid, func(w *model.Work) {
		mu.Lock()
		defer mu.Unlock()
		done[w.DOI] = w
	})

	for _, res := range batch.Failed() {
		logger.Error("resolve failed", "doi", res.ID, "error", res.Err)
	}

	// Report works in argument order.
	works := make([]*model.Work, 0, len(done))
	for _, res := range batch.Results {
		if w, ok := done[res.ID]; ok {
			works = append(works, w)
		}
	}
	if err := writeResolveReport(cfg, opts, engine, batch, works, output); err != nil {
		return err
	}

	if failed := len(batch.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d works failed", failed, len(batch.Results))
	}
	return nil
}

func writeResolveReport(cfg *config.Config, opts resolveOptions, engine *resolve.Engine, batch *pipeline.BatchReport, works []*model.Work, output io.Writer) error {
	if opts.summary {
		w, err := report.New(reportFormat(cfg), output)
		if err != nil {
			return err
		}
		_, err = w.WriteBatch(batch)
		return err
	}

	if opts.legacy {
		legacy := make([]model.LegacyResponse, len(works))
		for i, w := range works {
			legacy[i] = engine.Legacy(w)
		}
		jw := report.NewJSONWriter(output, report.WithPrettyPrint())
		var err error
		if len(legacy) == 1 {
			_, err = jw.WriteValue(legacy[0])
		} else {
			_, err = jw.WriteValue(legacy)
		}
		return err
	}

	responses := make([]*model.Response, 0, len(works))
	for _, w := range works {
		if w.Response != nil {
			responses = append(responses, w.Response)
		}
	}
	w, err := report.New(reportFormat(cfg), output)
	if err != nil {
		return err
	}
	_, err = w.WriteResponses(responses)
	return err
}
