package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nao1215/oadoi/internal/change"
	"github.com/nao1215/oadoi/internal/consolidate"
	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/match"
	"github.com/nao1215/oadoi/internal/metadata"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// TestAccountPublisher is the publisher name of placeholder DOIs registered
// for testing. Such works are never resolved.
const TestAccountPublisher = "CrossRef Test Account"

// ErrorInvalidDOI is the error text of works whose identity is invalid.
const ErrorInvalidDOI = "Invalid DOI"

// Store supplies the related data of a work through explicit finders.
type Store interface {
	RecordsByDOI(ctx context.Context, doi string) ([]model.RepositoryRecord, error)
	RecordsByNormalizedTitle(ctx context.Context, normalizedTitle string) ([]model.RepositoryRecord, error)
	PMCLinks(ctx context.Context, doi string) ([]model.PMCLink, error)
	Noncompliant(ctx context.Context, doi string) ([]string, error)
}

// Outcome describes one recalculation.
type Outcome struct {
	// Changed is true when the canonical response materially changed.
	Changed bool

	// Result is the consolidation result.
	Result consolidate.Result

	// Performed lists the probes that ran.
	Performed []string
}

// Engine recalculates works: it normalizes the raw record, filters
// repository matches, runs the probes, consolidates the candidates and
// detects changes.
type Engine struct {
	normalizer   *metadata.Normalizer
	classifier   *heuristics.Classifier
	filter       *match.Filter
	consolidator *consolidate.Consolidator
	detector     *change.Detector
	pipeline     *pipeline.Pipeline

	store         Store
	pageScraper   PageScraper
	recordScraper pipeline.RecordScraper
	recordSaver   pipeline.RecordSaver
	overrides     pipeline.OverrideSource
	denylist      []string
	noncompliant  []string
	greenScrape   bool

	now    func() time.Time
	rand   func() float64
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the finder used for repository records, PMC links and
// noncompliant reports. Without a store those sources are empty.
func WithStore(store Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithClassifier replaces the default heuristics.
func WithClassifier(c *heuristics.Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithFilter replaces the default repository match filter.
func WithFilter(f *match.Filter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithPageScraper sets the landing-page scraper used by RefreshHybridScrape.
func WithPageScraper(s PageScraper) Option {
	return func(e *Engine) {
		e.pageScraper = s
	}
}

// WithRecordScraper enables on-demand scraping of never-matched
// repository records.
func WithRecordScraper(s pipeline.RecordScraper) Option {
	return func(e *Engine) {
		e.recordScraper = s
	}
}

// WithRecordSaver persists records rescraped during a pass.
func WithRecordSaver(s pipeline.RecordSaver) Option {
	return func(e *Engine) {
		e.recordSaver = s
	}
}

// WithOverrides sets the manual override table.
func WithOverrides(o pipeline.OverrideSource) Option {
	return func(e *Engine) {
		e.overrides = o
	}
}

// WithScrapeDenylist replaces the endpoints never rescraped on demand.
func WithScrapeDenylist(denylist []string) Option {
	return func(e *Engine) {
		e.denylist = denylist
	}
}

// WithNoncompliant adds URL fragments excluded for every work.
func WithNoncompliant(fragments []string) Option {
	return func(e *Engine) {
		e.noncompliant = fragments
	}
}

// WithGreenScrape toggles on-demand scraping of repository records.
func WithGreenScrape(enabled bool) Option {
	return func(e *Engine) {
		e.greenScrape = enabled
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRand sets the jitter source for new works.
func WithRand(fn func() float64) Option {
	return func(e *Engine) {
		e.rand = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		denylist:    pipeline.DefaultScrapeDenylist,
		greenScrape: true,
		now:         time.Now,
		rand:        rand.Float64,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = heuristics.Default()
	}
	if e.filter == nil {
		e.filter = match.NewFilter(match.WithLogger(e.logger))
	}

	e.normalizer = metadata.New(metadata.WithClock(e.now), metadata.WithLogger(e.logger))
	e.consolidator = consolidate.New(consolidate.WithLogger(e.logger))
	e.detector = change.New(change.WithLogger(e.logger))

	greenOpts := []pipeline.GreenStepOption{
		pipeline.WithScrapeDenylist(e.denylist),
		pipeline.WithGreenLogger(e.logger),
	}
	if e.recordSaver != nil {
		greenOpts = append(greenOpts, pipeline.WithRecordSaver(e.recordSaver))
	}
	e.pipeline = pipeline.New(pipeline.WithLogger(e.logger), pipeline.WithContinueOnError(true))
	e.pipeline.AddSteps(pipeline.DefaultSteps(e.classifier, e.recordScraper, e.overrides, greenOpts...)...)
	return e
}

// Classifier returns the heuristics in use.
func (e *Engine) Classifier() *heuristics.Classifier {
	return e.classifier
}

// Recalculate rebuilds the canonical response of w in place. It never
// fails: every fault ends up in the work's error log.
func (e *Engine) Recalculate(ctx context.Context, w *model.Work) Outcome {
	now := e.now().UTC()
	w.Errors.Reset()
	w.Locations = nil
	w.Invalid = false
	if w.Rand == 0 {
		w.Rand = e.rand()
	}

	biblio := e.normalizer.Normalize(w.Record)
	if w.Title == "" {
		w.Title = biblio.Title
	}
	if title, ok := titleWorkarounds[w.DOI]; ok {
		w.Title = title
	}
	w.NormalizedTitle = match.NormalizeTitle(w.Title)
	if w.PublishedDate == "" {
		w.PublishedDate = biblio.PublishedDate
	}

	var out Outcome
	if err := e.checkIdentity(w, biblio); err != nil {
		e.logger.Info("invalid doi", "doi", w.DOI, "error", err)
		w.Invalid = true
		w.Errors.Append(ErrorInvalidDOI)
	} else {
		out = e.collect(ctx, w, biblio, now)
	}

	resp := e.buildResponse(w, biblio, out.Result, now)
	w.Summary = summarize(out.Result)

	out.Changed = e.detector.HasChanged(biblio.Genre, resp, w.Response)
	if out.Changed {
		w.LastChanged = now
		e.logger.Info("response changed", "doi", w.DOI, "is_oa", resp.IsOA)
	}
	if !w.LastChanged.IsZero() {
		resp.LastChangedDate = formatTimestamp(w.LastChanged)
	}
	w.Updated = now
	w.Response = resp
	return out
}

func (e *Engine) checkIdentity(w *model.Work, biblio metadata.Biblio) error {
	if _, err := model.CleanDOI(w.DOI); err != nil {
		return fmt.Errorf("%w: %q", err, w.DOI)
	}
	if biblio.Publisher == TestAccountPublisher {
		return fmt.Errorf("%w: %s", model.ErrInvalidDOI, TestAccountPublisher)
	}
	return nil
}

// collect runs the probes and consolidates their candidates.
func (e *Engine) collect(ctx context.Context, w *model.Work, biblio metadata.Biblio, now time.Time) Outcome {
	pass := pipeline.NewPass(w, biblio, now)
	pass.GreenScrape = e.greenScrape
	pass.Matches = e.matches(ctx, w, biblio)
	pass.PMCLinks = e.pmcLinks(ctx, w)

	if err := e.pipeline.Execute(ctx, pass); err != nil {
		w.Errors.Append(fmt.Sprintf("pass: %v", err))
	}

	result := e.consolidator.Consolidate(pass.Locations, e.noncompliantFor(ctx, w))
	if result.Best != nil && result.IsOpen {
		applyLicenseWorkaround(result.Best)
		result.Locations[0].License = result.Best.License
	}
	w.Locations = result.Locations

	return Outcome{Result: result, Performed: pass.Performed}
}

func (e *Engine) matches(ctx context.Context, w *model.Work, biblio metadata.Biblio) []model.RecordMatch {
	if e.store == nil {
		return nil
	}
	byDOI, err := e.store.RecordsByDOI(ctx, w.DOI)
	if err != nil {
		w.Errors.Append(fmt.Sprintf("repository_match: %v", err))
	}
	var byTitle []model.RepositoryRecord
	if w.NormalizedTitle != "" && !e.filter.TitleIsTooShort(w.NormalizedTitle) {
		byTitle, err = e.store.RecordsByNormalizedTitle(ctx, w.NormalizedTitle)
		if err != nil {
			w.Errors.Append(fmt.Sprintf("repository_match: %v", err))
		}
	}
	return e.filter.Apply(match.Subject{
		NormalizedTitle:     w.NormalizedTitle,
		FirstAuthorLastName: biblio.FirstAuthorLastName,
		LastAuthorLastName:  biblio.LastAuthorLastName,
	}, byDOI, byTitle)
}

func (e *Engine) pmcLinks(ctx context.Context, w *model.Work) []model.PMCLink {
	if e.store == nil {
		return nil
	}
	links, err := e.store.PMCLinks(ctx, w.DOI)
	if err != nil {
		w.Errors.Append(fmt.Sprintf("%s: %v", pipeline.StepPMC, err))
	}
	return links
}

func (e *Engine) noncompliantFor(ctx context.Context, w *model.Work) []string {
	fragments := append([]string(nil), e.noncompliant...)
	if e.store == nil {
		return fragments
	}
	reported, err := e.store.Noncompliant(ctx, w.DOI)
	if err != nil {
		w.Errors.Append(fmt.Sprintf("noncompliant: %v", err))
	}
	return append(fragments, reported...)
}

// summarize flattens the winner onto the persisted summary columns.
func summarize(res consolidate.Result) model.Summary {
	if !res.IsOpen || res.Best == nil {
		return model.Summary{}
	}
	best := res.Best
	s := model.Summary{
		IsOA:         true,
		BestURL:      best.BestURL(),
		BestEvidence: best.Evidence,
		BestHost:     best.HostType(),
		BestVersion:  best.Version,
	}
	if s.BestHost == model.HostRepository {
		s.BestRepoID = best.RepositoryID
	}
	return s
}
