package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/model"
)

// Probe names.
const (
	StepLocalLookup    = "local_lookup"
	StepPMC            = "pmc_lookup"
	StepGreen          = "green_locations"
	StepHybridScrape   = "hybrid_scrape"
	StepManualOverride = "manual_override"
)

// LocalLookupStep classifies the work with the local heuristics. The rules
// form an exclusive cascade: the first one that matches produces the only
// candidate.
type LocalLookupStep struct {
	classifier *heuristics.Classifier
}

// NewLocalLookupStep creates the local-lookup probe.
func NewLocalLookupStep(classifier *heuristics.Classifier) *LocalLookupStep {
	return &LocalLookupStep{classifier: classifier}
}

// Name returns the step name.
func (s *LocalLookupStep) Name() string {
	return StepLocalLookup
}

// Do runs the cascade.
func (s *LocalLookupStep) Do(_ context.Context, pass *Pass) error {
	b := pass.Biblio
	w := pass.Work

	loc := model.Location{
		MetadataURL: w.URL(),
		Version:     model.VersionPublished,
		Updated:     pass.Now,
	}

	if license, ok := s.classifier.RegistryLicense(b.ISSNs, b.AllJournals, b.Year); ok {
		loc.License = license
		loc.Evidence = model.EvidenceRegistry
	} else if s.classifier.IsOAPublisher(b.Publisher) {
		loc.Evidence = model.EvidencePublisherName
	} else if s.classifier.IsOADOIPrefix(w.DOI) {
		loc.Evidence = model.EvidenceDOIPrefix
	} else if s.classifier.IsOAURLPrefix(w.URL()) {
		loc.Evidence = model.EvidenceURLPrefix
	} else if licenseURL, ok := s.classifier.OpenLicenseURL(b.VORLicenseURLs); ok {
		loc.License = heuristics.NormalizeLicense(licenseURL)
		loc.Evidence = model.EvidenceLicense
	} else if len(b.AMLicenseURLs) > 0 {
		freetext := b.AMLicenseURLs[0]
		loc.License = heuristics.NormalizeLicense(freetext)
		if loc.License == "" {
			loc.License = "publisher-specific, author manuscript: " + freetext
		}
		loc.Version = model.VersionAccepted
		loc.PDFURL = PredictManuscriptPDF(b.Publisher, w.DOI, b.AlternativeID)
		loc.Evidence = model.EvidenceManuscript
	} else {
		return nil
	}

	pass.Add(loc)
	return nil
}

// apsJournals restores the case of APS journal codes, longest first so that
// a short code never rewrites part of a longer one.
var apsJournals = strings.NewReplacer(
	"physrevphyseducres", "PhysRevPhysEducRes",
	"physrevaccelbeams", "PhysRevAccelBeams",
	"physrevapplied", "PhysRevApplied",
	"physrevstper", "PhysRevSTPER",
	"physrevlett", "PhysRevLett",
	"revmodphys", "RevModPhys",
	"physreva", "PhysRevA",
	"physrevb", "PhysRevB",
	"physrevc", "PhysRevC",
	"physrevd", "PhysRevD",
	"physreve", "PhysRevE",
	"physrevx", "PhysRevX",
)

// PredictManuscriptPDF returns the URL where a few publishers serve the
// accepted manuscript, or "" when the publisher has no known template.
func PredictManuscriptPDF(publisher, doi, alternativeID string) string {
	switch {
	case samePublisher(publisher, "Elsevier BV"):
		if alternativeID == "" {
			return ""
		}
		return fmt.Sprintf("https://manuscript.elsevier.com/%s/pdf/%s.pdf", alternativeID, alternativeID)
	case samePublisher(publisher, "American Physical Society (APS)"):
		proper := apsJournals.Replace(doi)
		if proper == doi {
			return ""
		}
		return "https://link.aps.org/accepted/" + proper
	case samePublisher(publisher, "AIP Publishing"):
		return "https://aip.scitation.org/doi/" + doi
	case samePublisher(publisher, "IOP Publishing"):
		return "http://iopscience.iop.org/article/" + doi + "/ampdf"
	}
	return ""
}

func samePublisher(publisher, want string) bool {
	return strings.EqualFold(strings.TrimSpace(publisher), want)
}

// PMCStep emits a candidate for every live PubMed Central copy.
type PMCStep struct{}

// NewPMCStep creates the PMC probe.
func NewPMCStep() *PMCStep {
	return &PMCStep{}
}

// Name returns the step name.
func (s *PMCStep) Name() string {
	return StepPMC
}

// Do emits the PMC candidates.
func (s *PMCStep) Do(_ context.Context, pass *Pass) error {
	for _, link := range pass.PMCLinks {
		if link.ReleaseStatus != model.PMCReleaseLive || link.PMCID == "" {
			continue
		}
		pass.Add(model.Location{
			MetadataURL: "https://www.ncbi.nlm.nih.gov/pmc/articles/" + strings.ToUpper(link.PMCID),
			Evidence:    model.EvidencePMC,
			Version:     link.Version(),
			Host:        model.HostRepository,
			Updated:     pass.Now,
		})
	}
	return nil
}

// HybridScrapeStep turns the persisted landing-page snapshot into a
// candidate. It never scrapes.
type HybridScrapeStep struct{}

// NewHybridScrapeStep creates the hybrid-scrape probe.
func NewHybridScrapeStep() *HybridScrapeStep {
	return &HybridScrapeStep{}
}

// Name returns the step name.
func (s *HybridScrapeStep) Name() string {
	return StepHybridScrape
}

// Do reads the snapshot.
func (s *HybridScrapeStep) Do(_ context.Context, pass *Pass) error {
	snap := pass.Work.Scrape
	if !snap.IsOpen() {
		return nil
	}
	pass.Add(model.Location{
		PDFURL:      snap.PDFURL,
		MetadataURL: snap.MetadataURL,
		License:     snap.License,
		Evidence:    snap.Evidence,
		Version:     model.VersionPublished,
		Scraped:     true,
		Updated:     snap.Updated,
	})
	return nil
}

// RecordScraper fetches the landing page of a harvested record and returns
// the record with its scrape fields refreshed.
type RecordScraper interface {
	ScrapeRecord(ctx context.Context, rec model.RepositoryRecord) (model.RepositoryRecord, error)
}

// RecordSaver persists a rescraped record.
type RecordSaver interface {
	SaveRecord(ctx context.Context, rec model.RepositoryRecord) error
}

// DefaultScrapeDenylist holds endpoints that are never rescraped on demand.
var DefaultScrapeDenylist = []string{"open-archive.highwire.org/handler"}

// GreenStep turns open repository matches into candidates. Records that
// have never been matched before are scraped first, once.
type GreenStep struct {
	scraper  RecordScraper
	saver    RecordSaver
	denylist []string
	logger   *slog.Logger
}

// GreenStepOption configures a GreenStep.
type GreenStepOption func(*GreenStep)

// WithRecordSaver persists rescraped records.
func WithRecordSaver(saver RecordSaver) GreenStepOption {
	return func(s *GreenStep) {
		s.saver = saver
	}
}

// WithScrapeDenylist replaces the endpoints that are never rescraped.
func WithScrapeDenylist(denylist []string) GreenStepOption {
	return func(s *GreenStep) {
		s.denylist = denylist
	}
}

// WithGreenLogger sets a custom logger for the green probe.
func WithGreenLogger(logger *slog.Logger) GreenStepOption {
	return func(s *GreenStep) {
		s.logger = logger
	}
}

// NewGreenStep creates the green probe. A nil scraper disables rescraping.
func NewGreenStep(scraper RecordScraper, opts ...GreenStepOption) *GreenStep {
	s := &GreenStep{
		scraper:  scraper,
		denylist: DefaultScrapeDenylist,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *GreenStep) Name() string {
	return StepGreen
}

// Do walks the matches in order.
func (s *GreenStep) Do(ctx context.Context, pass *Pass) error {
	for i := range pass.Matches {
		match := &pass.Matches[i]
		rec := &match.Record

		if pass.GreenScrape && rec.MatchCount == 0 {
			s.rescrape(ctx, pass, rec)
		}

		if !rec.IsOpen() {
			continue
		}
		pass.Add(model.Location{
			PDFURL:       rec.ScrapePDFURL,
			MetadataURL:  rec.ScrapeMetadataURL,
			License:      rec.ScrapeLicense,
			Evidence:     match.Kind.Evidence(),
			Version:      rec.ScrapeVersion,
			Host:         model.HostRepository,
			RepositoryID: rec.RepositoryID,
			RecordID:     rec.ID,
			Scraped:      true,
			Updated:      rec.ScrapeUpdated,
		})
	}
	return nil
}

func (s *GreenStep) rescrape(ctx context.Context, pass *Pass, rec *model.RepositoryRecord) {
	// Counted before scraping so that a failing page is not retried on
	// every pass.
	rec.MatchCount = 1

	if s.scraper != nil && rec.Error == "" && !s.denied(rec) {
		s.logger.Info("scraping never-matched repository record",
			"doi", pass.Work.DOI,
			"repository", rec.RepositoryID,
			"record", rec.ID,
		)
		updated, err := s.scraper.ScrapeRecord(ctx, *rec)
		if err != nil {
			pass.RecordError(s.Name(), fmt.Errorf("record %s: %w", rec.ID, err))
			rec.Error = err.Error()
		} else {
			updated.MatchCount = rec.MatchCount
			*rec = updated
		}
	}

	if s.saver == nil {
		return
	}
	if err := s.saver.SaveRecord(ctx, *rec); err != nil {
		s.logger.Warn("failed to save rescraped record",
			"record", rec.ID,
			"error", err,
		)
	}
}

func (s *GreenStep) denied(rec *model.RepositoryRecord) bool {
	for _, endpoint := range s.denylist {
		if endpoint == "" {
			continue
		}
		if rec.RepositoryID == endpoint || strings.Contains(rec.FeedURL, endpoint) {
			return true
		}
	}
	return false
}

// OverrideSource looks up curated answers by DOI.
type OverrideSource interface {
	Override(doi string) (model.Override, bool)
}

// ManualOverrideStep replaces all collected candidates with a curated
// answer when one exists for the DOI.
type ManualOverrideStep struct {
	source OverrideSource
	logger *slog.Logger
}

// NewManualOverrideStep creates the manual-override probe.
func NewManualOverrideStep(source OverrideSource, logger *slog.Logger) *ManualOverrideStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManualOverrideStep{source: source, logger: logger}
}

// Name returns the step name.
func (s *ManualOverrideStep) Name() string {
	return StepManualOverride
}

// Do applies the override.
func (s *ManualOverrideStep) Do(_ context.Context, pass *Pass) error {
	if s.source == nil || pass.Work.DOI == "" {
		return nil
	}
	override, ok := s.source.Override(pass.Work.DOI)
	if !ok {
		return nil
	}

	s.logger.Info("manual override", "doi", pass.Work.DOI, "closed", override.Closed)
	loc, open := override.Location()
	if !open {
		pass.Replace()
		return nil
	}
	loc.Updated = pass.Now
	pass.Replace(loc)
	return nil
}

// DefaultSteps returns the probes in the order a pass runs them.
func DefaultSteps(classifier *heuristics.Classifier, scraper RecordScraper, overrides OverrideSource, opts ...GreenStepOption) []Step {
	return []Step{
		NewLocalLookupStep(classifier),
		NewPMCStep(),
		NewGreenStep(scraper, opts...),
		NewHybridScrapeStep(),
		NewManualOverrideStep(overrides, nil),
	}
}
