package resolve

import (
	"context"
	"fmt"

	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
	"github.com/nao1215/oadoi/internal/scrape"
)

// PageScraper fetches and inspects a publisher landing page.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (scrape.Result, error)
}

// WorkStore loads and persists works for batch refreshes.
type WorkStore interface {
	GetWork(ctx context.Context, doi string) (*model.Work, error)
	SaveWork(ctx context.Context, w *model.Work) error
}

// RefreshHybridScrape scrapes the DOI landing page of w and rewrites its
// scrape snapshot. The previous snapshot is discarded even when the scrape
// fails.
func (e *Engine) RefreshHybridScrape(ctx context.Context, w *model.Work) error {
	if e.pageScraper == nil {
		return ErrNoPageScraper
	}

	w.Scrape = model.ScrapeSnapshot{Updated: e.now().UTC()}
	if w.DOI == "" {
		return nil
	}

	e.logger.Info("refreshing landing page", "doi", w.DOI, "url", w.URL())
	res, err := e.pageScraper.Scrape(ctx, w.URL())
	if err != nil {
		return fmt.Errorf("failed to scrape landing page of %s: %w", w.DOI, err)
	}
	if !res.IsOpen {
		return nil
	}

	w.Scrape.Evidence = res.Evidence
	w.Scrape.PDFURL = res.PDFURL
	w.Scrape.MetadataURL = res.MetadataURL
	w.Scrape.License = res.License
	if res.PDFURL == "" {
		w.Scrape.MetadataURL = w.URL()
	}
	return nil
}

// RefreshBatch recalculates and persists every DOI with bp. With hybrid set
// the landing page is scraped first; a failed scrape is logged and the
// recalculation still runs. Each unit fails only when the work cannot be
// loaded or saved.
func (e *Engine) RefreshBatch(ctx context.Context, store WorkStore, dois []string, bp *pipeline.BatchProcessor, hybrid bool) *pipeline.BatchReport {
	return e.RefreshBatchEach(ctx, store, dois, bp, hybrid, nil)
}

// RefreshBatchEach is RefreshBatch with visit called for every saved work,
// while its transient locations are still populated. visit runs on the
// batch workers and must be safe for concurrent use.
func (e *Engine) RefreshBatchEach(ctx context.Context, store WorkStore, dois []string, bp *pipeline.BatchProcessor, hybrid bool, visit func(*model.Work)) *pipeline.BatchReport {
	if bp == nil {
		bp = pipeline.NewBatchProcessor(pipeline.WithBatchLogger(e.logger))
	}
	return bp.Process(ctx, dois, func(ctx context.Context, doi string) error {
		w, err := store.GetWork(ctx, doi)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", doi, err)
		}
		if w == nil {
			return fmt.Errorf("%w: %s", ErrWorkNotFound, doi)
		}

		if hybrid {
			if err := e.RefreshHybridScrape(ctx, w); err != nil {
				e.logger.Warn("hybrid refresh failed", "doi", doi, "error", err)
			}
		}

		out := e.Recalculate(ctx, w)
		if err := store.SaveWork(ctx, w); err != nil {
			return fmt.Errorf("failed to save %s: %w", doi, err)
		}
		e.logger.Debug("work refreshed",
			"doi", doi,
			"is_oa", w.Summary.IsOA,
			"changed", out.Changed,
		)
		if visit != nil {
			visit(w)
		}
		return nil
	})
}
