package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/oadoi/internal/config"
	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/log"
	"github.com/nao1215/oadoi/internal/match"
	"github.com/nao1215/oadoi/internal/report"
	"github.com/nao1215/oadoi/internal/resolve"
	"github.com/nao1215/oadoi/internal/scrape"
)

// getBoolFlag reads a flag from the command or, when the command runs
// detached from the root, from the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getStringFlag is the string counterpart of getBoolFlag.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the shared configuration from the global flags, the
// environment and the configuration file. An explicitly named file must
// exist; otherwise a missing file leaves the defaults in place.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.ConfigFilePath = getStringFlag(cmd, "config")
	if dir := getStringFlag(cmd, "db-dir"); dir != "" {
		cfg.DBDir = dir
	}
	cfg.LoadEnv()

	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.File = f
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	return cfg, nil
}

// setupLogger installs the masking logger as the process default.
func setupLogger(verbose bool) *slog.Logger {
	logger := log.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// openStore opens the database in cfg.DBDir.
func openStore(cfg *config.Config, logger *slog.Logger) (*database.Store, error) {
	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", store.Path())
	return store, nil
}

// reportFormat maps the format flags to a report format.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	case cfg.CSVReport:
		return report.FormatCSV
	}
	return report.FormatTable
}

// openOutput returns the report destination: cfg.ReportFile when set,
// otherwise fallback. The returned close function is never nil.
func openOutput(cfg *config.Config, fallback io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return fallback, func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newEngine wires the resolution engine to the store, the scraper and the
// lists named by the configuration file.
func newEngine(cfg *config.Config, store *database.Store, logger *slog.Logger) (*resolve.Engine, error) {
	classifier := heuristics.Default()
	if cfg.File.Heuristics != "" {
		var err error
		classifier, err = heuristics.Load(cfg.File.Heuristics)
		if err != nil {
			return nil, fmt.Errorf("failed to load heuristics: %w", err)
		}
	}

	scraper := scrape.New(
		scrape.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		scrape.WithUserAgent(cfg.UserAgent),
		scrape.WithMaxBodySize(cfg.MaxBodySize),
		scrape.WithLogger(logger),
	)

	opts := []resolve.Option{
		resolve.WithStore(store),
		resolve.WithClassifier(classifier),
		resolve.WithFilter(newFilter(cfg.File.Match, logger)),
		resolve.WithPageScraper(scraper),
		resolve.WithRecordScraper(scraper),
		resolve.WithRecordSaver(store),
		resolve.WithNoncompliant(cfg.File.Noncompliant),
		resolve.WithGreenScrape(cfg.GreenScrape),
		resolve.WithLogger(logger),
	}
	if len(cfg.File.ScrapeDenylist) > 0 {
		opts = append(opts, resolve.WithScrapeDenylist(cfg.File.ScrapeDenylist))
	}
	if cfg.File.Overrides != "" {
		overrides, err := config.LoadOverrides(cfg.File.Overrides)
		if err != nil {
			return nil, err
		}
		logger.Debug("overrides loaded", "count", overrides.Len())
		opts = append(opts, resolve.WithOverrides(overrides))
	}
	return resolve.New(opts...), nil
}

// newFilter builds the match filter; zero thresholds keep the defaults.
func newFilter(mc config.MatchConfig, logger *slog.Logger) *match.Filter {
	opts := []match.Option{match.WithLogger(logger)}
	if mc.MinTitleLength > 0 {
		opts = append(opts, match.WithMinTitleLength(mc.MinTitleLength))
	}
	if mc.MaxPerRepository > 0 {
		opts = append(opts, match.WithMaxPerRepository(mc.MaxPerRepository))
	}
	if len(mc.CommonTitles) > 0 {
		opts = append(opts, match.WithCommonTitles(mc.CommonTitles))
	}
	return match.NewFilter(opts...)
}
