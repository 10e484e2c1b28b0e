package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/oadoi/internal/config"
	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/report"
)

// dateLayout is the layout of --first and --last.
const dateLayout = "2006-01-02"

// NewHarvestCmd creates the harvest command.
func NewHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest repository records from OAI-PMH feeds",
		Long: `Harvest pulls repository records from OAI-PMH feeds into the store.

Without --url every feed of the configuration file is harvested in turn, or
the BASE feed when the file names none. Without a date range a feed resumes
from the end of its last complete run. Only one process can harvest a feed
at a time.

Feeds known to allow-list a fixed IP are reached through the proxy in
OADOI_STATIC_IP_PROXY.

Examples:
  # Resume every configured feed
  oadoi harvest

  # Harvest the last three days of one feed
  oadoi harvest --url http://export.arxiv.org/oai2 --days 3

  # Harvest an explicit range with a smaller commit size
  oadoi harvest --url https://repo.example/oai --first 2024-01-01 --last 2024-02-01 --chunk-size 50`,
		Args: cobra.NoArgs,
		RunE: runHarvestCmd,
	}

	cmd.Flags().StringSliceP("url", "u", nil,
		"Feed endpoint to harvest (repeatable)")
	cmd.Flags().String("first", "",
		"First record datestamp to harvest (YYYY-MM-DD)")
	cmd.Flags().String("last", "",
		"Last record datestamp to harvest (YYYY-MM-DD)")
	cmd.Flags().Bool("today", false,
		"Harvest the records of the last two days")
	cmd.Flags().Int("days", 0,
		"Harvest the records of the last N days")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize,
		"Number of records committed at once")
	cmd.Flags().String("metadata-prefix", "",
		"OAI-PMH metadata format (default: base_dc for BASE, oai_dc otherwise)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultHarvestTimeout,
		"Timeout of each OAI-PMH request")
	cmd.Flags().String("lock-dir", config.XDGStateDir(),
		"Directory of the per-feed lock files")

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")
	cmd.Flags().Bool("csv", false, "Output CSV")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to the given file (creates directories if needed)")

	return cmd
}

func buildHarvestJobs(cmd *cobra.Command, cfg *config.Config) ([]harvest.Job, error) {
	flags := cmd.Flags()

	urls, err := flags.GetStringSlice("url")
	if err != nil {
		return nil, err
	}
	first, err := flags.GetString("first")
	if err != nil {
		return nil, err
	}
	last, err := flags.GetString("last")
	if err != nil {
		return nil, err
	}
	today, err := flags.GetBool("today")
	if err != nil {
		return nil, err
	}
	days, err := flags.GetInt("days")
	if err != nil {
		return nil, err
	}
	prefix, err := flags.GetString("metadata-prefix")
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, fmt.Errorf("--days must not be negative: %d", days)
	}
	if today {
		days = harvest.TodayDays
	}

	var from, until time.Time
	if first != "" {
		if from, err = time.Parse(dateLayout, first); err != nil {
			return nil, fmt.Errorf("invalid --first: %w", err)
		}
	}
	if last != "" {
		if until, err = time.Parse(dateLayout, last); err != nil {
			return nil, fmt.Errorf("invalid --last: %w", err)
		}
	}
	if !from.IsZero() && !until.IsZero() && until.Before(from) {
		return nil, fmt.Errorf("--last %s is before --first %s", last, first)
	}

	if len(urls) == 0 {
		urls = cfg.File.FeedURLs()
	}
	if len(urls) == 0 {
		urls = []string{harvest.DefaultFeedURL}
	}

	jobs := make([]harvest.Job, 0, len(urls))
	for _, u := range urls {
		job := cfg.File.GetFeedConfig(u).Job(cfg.ChunkSize)
		if prefix != "" {
			job.MetadataPrefix = prefix
		}
		job.From = from
		job.Until = until
		job.LastDays = days
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func runHarvestCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if cfg.ChunkSize, err = flags.GetInt("chunk-size"); err != nil {
		return err
	}
	if cfg.HarvestTimeout, err = flags.GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.CSVReport, err = flags.GetBool("csv"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	lockDir, err := flags.GetString("lock-dir")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	jobs, err := buildHarvestJobs(cmd, cfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	output, closeOutput, err := openOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // Best effort on the error path

	w, err := report.New(reportFormat(cfg), output)
	if err != nil {
		return err
	}

	h := harvest.New(store,
		harvest.WithProxyURL(cfg.ProxyURL),
		harvest.WithLockDir(lockDir),
		harvest.WithRequestTimeout(cfg.HarvestTimeout),
		harvest.WithUserAgent(cfg.UserAgent),
		harvest.WithLogger(logger),
	)
	if err := runHarvest(ctx, h, store, jobs, w, logger); err != nil {
		return err
	}
	return closeOutput()
}

// runHarvest runs the jobs in order and writes one summary per feed. A
// locked or failing feed does not stop the others; the joined errors are
// returned at the end.
func runHarvest(ctx context.Context, h *harvest.Harvester, store *database.Store, jobs []harvest.Job, w report.Writer, logger *slog.Logger) error {
	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		summary, err := h.Run(ctx, job)
		if err != nil {
			logger.Error("harvest failed", "feed", job.FeedURL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", job.FeedURL, err))
		}
		if summary == nil {
			continue
		}
		if _, err := w.WriteHarvest(summary); err != nil {
			return err
		}
		if n, err := store.CountRecords(ctx, summary.FeedURL); err == nil {
			logger.Debug("feed records stored", "feed", summary.FeedURL, "records", n)
		}
	}
	return errors.Join(errs...)
}
