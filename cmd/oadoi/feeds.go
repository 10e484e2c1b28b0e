package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/oadoi/internal/config"
	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/report"
)

// NewFeedsCmd creates the feeds command.
func NewFeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "List feeds and their harvest checkpoints",
		Long: `Feeds lists every harvested feed with the start and end of its last run
and the date its last complete run harvested through. Feeds named in the
configuration file that were never harvested are listed without times.`,
		Args: cobra.NoArgs,
		RunE: runFeedsCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")
	cmd.Flags().Bool("csv", false, "Output CSV")

	return cmd
}

func runFeedsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.CSVReport, err = flags.GetBool("csv"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	feeds, err := listFeeds(cmd.Context(), store, cfg)
	if err != nil {
		return err
	}

	w, err := report.New(reportFormat(cfg), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, err = w.WriteFeeds(feeds)
	return err
}

// listFeeds returns the stored feeds followed by configured feeds that
// were never harvested.
func listFeeds(ctx context.Context, store *database.Store, cfg *config.Config) ([]model.FeedSource, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	feeds, err := store.ListFeedSources(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		known[f.URL] = true
	}
	for _, u := range cfg.File.FeedURLs() {
		if !known[u] {
			known[u] = true
			feeds = append(feeds, model.FeedSource{URL: u})
		}
	}
	return feeds, nil
}
