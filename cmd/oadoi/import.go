package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/model"
)

// maxImportLine bounds one JSON line; full bibliographic records with
// reference lists can reach several megabytes.
const maxImportLine = 16 * 1024 * 1024

// importLine is one line of an import file.
type importLine struct {
	DOI          string         `json:"doi"`
	Record       map[string]any `json:"record"`
	PMC          []importPMC    `json:"pmc,omitempty"`
	Noncompliant []string       `json:"noncompliant,omitempty"`
}

type importPMC struct {
	PMCID            string `json:"pmcid"`
	ReleaseStatus    string `json:"release_status"`
	PublishedVersion bool   `json:"published_version"`
}

// importStats counts the outcome of an import.
type importStats struct {
	works   int
	pmc     int
	skipped int
}

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load bibliographic records into the store",
		Long: `Import loads works from a JSON lines file ("-" reads stdin).

Each line holds one work:

  {"doi": "10.1234/abc", "record": {...}, "pmc": [{"pmcid": "PMC123", "release_status": "live", "published_version": true}], "noncompliant": ["https://example.org/copy.pdf"]}

"record" is the raw bibliographic record of the metadata supplier. When
"doi" is empty the record's DOI field is used. Importing a DOI that is
already stored replaces its record and keeps its last response and
landing-page snapshot. Lines that cannot be parsed are logged and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCmd,
	}
	return cmd
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	var input io.Reader
	if args[0] == "-" {
		input = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0]) //nolint:gosec // User-provided path is intentional
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		input = f
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := importWorks(ctx, store, input, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d works and %d PMC links (%d lines skipped)\n",
		stats.works, stats.pmc, stats.skipped)
	return nil
}

// importWorks reads JSON lines from r into store. Malformed lines are
// skipped; store failures abort the import.
func importWorks(ctx context.Context, store *database.Store, r io.Reader, logger *slog.Logger) (importStats, error) {
	var stats importStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line importLine
		if err := json.Unmarshal(raw, &line); err != nil {
			logger.Warn("skipping malformed line", "line", lineNo, "error", err)
			stats.skipped++
			continue
		}
		doi, err := importDOI(line)
		if err != nil {
			logger.Warn("skipping line without a valid doi", "line", lineNo, "error", err)
			stats.skipped++
			continue
		}

		w, err := store.GetWork(ctx, doi)
		if err != nil {
			return stats, err
		}
		if w == nil {
			w = &model.Work{DOI: doi}
		}
		w.Record = line.Record
		if err := store.SaveWork(ctx, w); err != nil {
			return stats, err
		}
		stats.works++

		for _, p := range line.PMC {
			link := model.PMCLink{
				DOI:                 doi,
				PMCID:               p.PMCID,
				ReleaseStatus:       p.ReleaseStatus,
				HasPublishedVersion: p.PublishedVersion,
			}
			if err := store.SavePMCLink(ctx, link); err != nil {
				return stats, err
			}
			stats.pmc++
		}
		for _, u := range line.Noncompliant {
			if err := store.AddNoncompliant(ctx, doi, u); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read import file: %w", err)
	}

	logger.Info("import finished", "works", stats.works, "pmc", stats.pmc, "skipped", stats.skipped)
	return stats, nil
}

// importDOI returns the clean DOI of a line, falling back to the record.
func importDOI(line importLine) (string, error) {
	raw := line.DOI
	if raw == "" {
		if v, ok := line.Record["DOI"].(string); ok {
			raw = v
		}
	}
	return model.CleanDOI(raw)
}
