package resolve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
	"github.com/nao1215/oadoi/internal/scrape"
)

var errBoom = errors.New("boom")

type fakeStore struct {
	byDOI        map[string][]model.RepositoryRecord
	byTitle      map[string][]model.RepositoryRecord
	pmc          map[string][]model.PMCLink
	noncompliant map[string][]string
	err          error
}

func (s *fakeStore) RecordsByDOI(_ context.Context, doi string) ([]model.RepositoryRecord, error) {
	return s.byDOI[doi], s.err
}

func (s *fakeStore) RecordsByNormalizedTitle(_ context.Context, title string) ([]model.RepositoryRecord, error) {
	return s.byTitle[title], s.err
}

func (s *fakeStore) PMCLinks(_ context.Context, doi string) ([]model.PMCLink, error) {
	return s.pmc[doi], s.err
}

func (s *fakeStore) Noncompliant(_ context.Context, doi string) ([]string, error) {
	return s.noncompliant[doi], s.err
}

type fakePageScraper struct {
	result scrape.Result
	err    error
	urls   []string
}

func (s *fakePageScraper) Scrape(_ context.Context, pageURL string) (scrape.Result, error) {
	s.urls = append(s.urls, pageURL)
	return s.result, s.err
}

type workStore struct {
	mu    sync.Mutex
	works map[string]*model.Work
	saved []string
}

func (s *workStore) GetWork(_ context.Context, doi string) (*model.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.works[doi], nil
}

func (s *workStore) SaveWork(_ context.Context, w *model.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works[w.DOI] = w
	s.saved = append(s.saved, w.DOI)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func testClassifier(t *testing.T) *heuristics.Classifier {
	t.Helper()

	c, err := heuristics.New(heuristics.Lists{
		Registry:         []heuristics.RegistryEntry{{ISSN: "1111-1111", License: "cc-by"}},
		Publishers:       []string{"Open Press"},
		DataCitePrefixes: []string{"10.5281/"},
	})
	if err != nil {
		t.Fatalf("heuristics.New() error: %v", err)
	}
	return c
}

func newEngine(t *testing.T, c *clock, opts ...Option) *Engine {
	t.Helper()

	base := []Option{
		WithClassifier(testClassifier(t)),
		WithClock(c.Now),
		WithRand(func() float64 { return 0.5 }),
	}
	return New(append(base, opts...)...)
}

func record(publisher string, issns ...string) map[string]any {
	rec := map[string]any{
		"title":           []any{"A Study of Things"},
		"container-title": []any{"J.", "Journal of Studies"},
		"publisher":       publisher,
		"type":            "journal-article",
		"issued":          map[string]any{"date-parts": []any{[]any{2019, 5, 1}}},
		"author": []any{
			map[string]any{"given": "Ada", "family": "Lovelace"},
		},
	}
	if len(issns) > 0 {
		list := make([]any, len(issns))
		for i, issn := range issns {
			list[i] = issn
		}
		rec["ISSN"] = list
	}
	return rec
}

func repositoryCopy(id, pdf string) model.RepositoryRecord {
	return model.RepositoryRecord{
		ID:            id,
		Title:         "A Study of Things",
		URLs:          []string{"https://repo.example/" + id},
		RepositoryID:  "repo.example",
		ScrapePDFURL:  pdf,
		ScrapeVersion: model.VersionAccepted,
		ScrapeUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MatchCount:    1,
	}
}

func TestRecalculate(t *testing.T) {
	t.Parallel()

	t.Run("open journal", func(t *testing.T) {
		t.Parallel()

		c := newClock()
		e := newEngine(t, c)
		w := &model.Work{DOI: "10.1/a", Record: record("Some Press", "1111-1111")}

		out := e.Recalculate(context.Background(), w)
		if !out.Changed {
			t.Error("first pass must count as a change")
		}
		resp := w.Response
		if resp == nil || !resp.IsOA {
			t.Fatalf("response = %+v, want open", resp)
		}
		if resp.BestOALocation == nil || resp.BestOALocation.Evidence != model.EvidenceRegistry {
			t.Errorf("best = %+v", resp.BestOALocation)
		}
		if resp.BestOALocation.License != "cc-by" || resp.BestOALocation.OAColor != string(model.ColorGold) {
			t.Errorf("best license/color = %q/%q", resp.BestOALocation.License, resp.BestOALocation.OAColor)
		}
		if !resp.JournalIsInDOAJ || !resp.JournalIsOA {
			t.Error("registry journal must be flagged as oa and in doaj")
		}
		if resp.Title != "A Study of Things" || resp.JournalName != "Journal of Studies" {
			t.Errorf("title/journal = %q/%q", resp.Title, resp.JournalName)
		}
		if resp.Year == nil || *resp.Year != 2019 || resp.PublishedDate != "2019-05-01" {
			t.Errorf("year/date = %v/%q", resp.Year, resp.PublishedDate)
		}
		if resp.DataStandard != DataStandardBasic {
			t.Errorf("DataStandard = %d", resp.DataStandard)
		}
		if resp.JournalISSNs != "1111-1111" {
			t.Errorf("JournalISSNs = %q", resp.JournalISSNs)
		}
		if !w.Summary.IsOA || w.Summary.BestHost != model.HostPublisher || w.Summary.BestRepoID != "" {
			t.Errorf("Summary = %+v", w.Summary)
		}
		if !w.LastChanged.Equal(c.Now()) || !w.Updated.Equal(c.Now()) {
			t.Errorf("LastChanged/Updated = %v/%v", w.LastChanged, w.Updated)
		}
		if w.Rand != 0.5 {
			t.Errorf("Rand = %v", w.Rand)
		}
		if w.NormalizedTitle == "" {
			t.Error("NormalizedTitle not set")
		}
	})

	t.Run("second pass is stable", func(t *testing.T) {
		t.Parallel()

		c := newClock()
		e := newEngine(t, c)
		w := &model.Work{DOI: "10.1/a", Record: record("Some Press", "1111-1111")}

		e.Recalculate(context.Background(), w)
		first := w.LastChanged
		c.Advance(time.Hour)

		out := e.Recalculate(context.Background(), w)
		if out.Changed {
			t.Error("identical pass reported a change")
		}
		if !w.LastChanged.Equal(first) {
			t.Errorf("LastChanged moved to %v", w.LastChanged)
		}
		if !w.Updated.Equal(c.Now()) {
			t.Errorf("Updated = %v, want %v", w.Updated, c.Now())
		}
	})

	t.Run("closed work", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "10.1/closed", Record: record("Some Press")}

		e.Recalculate(context.Background(), w)
		resp := w.Response
		if resp.IsOA || resp.BestOALocation != nil || len(resp.OALocations) != 0 {
			t.Errorf("response = %+v, want closed", resp)
		}
		if resp.JournalIsOA || resp.JournalIsInDOAJ {
			t.Error("closed work must not report an oa journal")
		}
		if w.Summary != (model.Summary{}) {
			t.Errorf("Summary = %+v", w.Summary)
		}
	})

	t.Run("test account publisher", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "10.1/a", Record: record(TestAccountPublisher, "1111-1111")}

		out := e.Recalculate(context.Background(), w)
		if !w.Invalid {
			t.Error("work not marked invalid")
		}
		if w.Response.IsOA || len(w.Locations) != 0 || len(out.Performed) != 0 {
			t.Errorf("invalid work resolved: %+v", w.Response)
		}
		if w.Response.Error != ErrorInvalidDOI {
			t.Errorf("Error = %q", w.Response.Error)
		}
	})

	t.Run("malformed doi", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "not-a-doi", Record: record("Open Press")}

		e.Recalculate(context.Background(), w)
		if !w.Invalid || w.Response.IsOA {
			t.Errorf("Invalid/IsOA = %v/%v", w.Invalid, w.Response.IsOA)
		}
	})

	t.Run("repository copy", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{byDOI: map[string][]model.RepositoryRecord{
			"10.1/green": {repositoryCopy("oai:1", "https://repo.example/1.pdf")},
		}}
		e := newEngine(t, newClock(), WithStore(store))
		w := &model.Work{DOI: "10.1/green", Record: record("Some Press")}

		out := e.Recalculate(context.Background(), w)
		if !out.Result.IsOpen {
			t.Fatal("repository copy not found")
		}
		best := w.Response.BestOALocation
		if best.URL != "https://repo.example/1.pdf" || best.HostType != string(model.HostRepository) {
			t.Errorf("best = %+v", best)
		}
		if best.RepositoryID != "repo.example" || best.PMHID != "oai:1" {
			t.Errorf("best repository/pmh id = %q/%q", best.RepositoryID, best.PMHID)
		}
		if w.Summary.BestRepoID != "repo.example" || w.Summary.BestVersion != model.VersionAccepted {
			t.Errorf("Summary = %+v", w.Summary)
		}
	})

	t.Run("reported noncompliant copy", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{
			byDOI: map[string][]model.RepositoryRecord{
				"10.1/nc": {repositoryCopy("oai:1", "https://repo.example/1.pdf")},
			},
			noncompliant: map[string][]string{"10.1/nc": {"REPO.example/1"}},
		}
		e := newEngine(t, newClock(), WithStore(store))
		w := &model.Work{DOI: "10.1/nc", Record: record("Some Press")}

		e.Recalculate(context.Background(), w)
		if w.Response.IsOA {
			t.Error("noncompliant copy must not open the work")
		}
		want := []string{"https://repo.example/1.pdf"}
		if diff := cmp.Diff(want, w.Response.ReportedNoncompliantCopies); diff != "" {
			t.Errorf("noncompliant mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("global noncompliant fragment", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{byDOI: map[string][]model.RepositoryRecord{
			"10.1/nc": {repositoryCopy("oai:1", "https://academia.example/1.pdf")},
		}}
		e := newEngine(t, newClock(), WithStore(store), WithNoncompliant([]string{"academia.example"}))
		w := &model.Work{DOI: "10.1/nc", Record: record("Some Press")}

		e.Recalculate(context.Background(), w)
		if w.Response.IsOA {
			t.Error("globally noncompliant copy must not open the work")
		}
	})

	t.Run("harvard license workaround", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{byDOI: map[string][]model.RepositoryRecord{
			"10.1/h": {repositoryCopy("oai:1", "https://dash.harvard.edu/bitstream/1.pdf")},
		}}
		e := newEngine(t, newClock(), WithStore(store))
		w := &model.Work{DOI: "10.1/h", Record: record("Some Press")}

		e.Recalculate(context.Background(), w)
		if got := w.Response.BestOALocation.License; got != "cc-by-nc" {
			t.Errorf("License = %q, want cc-by-nc", got)
		}
		if got := e.Legacy(w).License; got != "cc-by-nc" {
			t.Errorf("legacy License = %q, want cc-by-nc", got)
		}
	})

	t.Run("title workaround", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "10.1038/493159a", Record: map[string]any{"title": []any{"aol"}}}

		e.Recalculate(context.Background(), w)
		if w.Title != "Altmetrics: Value all research products" {
			t.Errorf("Title = %q", w.Title)
		}
	})

	t.Run("store failures are recorded", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock(), WithStore(&fakeStore{err: errBoom}))
		w := &model.Work{DOI: "10.1/a", Record: record("Open Press")}

		e.Recalculate(context.Background(), w)
		if !w.Response.IsOA {
			t.Error("local lookup must still open the work")
		}
		if !strings.Contains(w.Response.Error, "boom") {
			t.Errorf("Error = %q", w.Response.Error)
		}
		if w.Response.DataStandard != DataStandardBasic {
			t.Errorf("DataStandard = %d", w.Response.DataStandard)
		}
	})

	t.Run("closed override", func(t *testing.T) {
		t.Parallel()

		overrides := overrideTable{"10.1/a": {DOI: "10.1/a", Closed: true}}
		e := newEngine(t, newClock(), WithOverrides(overrides))
		w := &model.Work{DOI: "10.1/a", Record: record("Open Press")}

		e.Recalculate(context.Background(), w)
		if w.Response.IsOA {
			t.Error("closed override must close the work")
		}
	})
}

type overrideTable map[string]model.Override

func (o overrideTable) Override(doi string) (model.Override, bool) {
	ov, ok := o[doi]
	return ov, ok
}

func TestLegacy(t *testing.T) {
	t.Parallel()

	t.Run("open", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "10.1/a", Record: record("Some Press", "1111-1111")}
		e.Recalculate(context.Background(), w)

		got := e.Legacy(w)
		want := model.LegacyResponse{
			AlgorithmVersion:           DataStandardBasic,
			DOIResolver:                ResolverCrossref,
			Evidence:                   model.EvidenceRegistry,
			FreeFulltextURL:            "https://doi.org/10.1/a",
			IsBOAILicense:              true,
			IsFreeToRead:               true,
			IsSubscriptionJournal:      false,
			License:                    "cc-by",
			OAColor:                    string(model.ColorGold),
			ReportedNoncompliantCopies: []string{},
			DOI:                        "10.1/a",
			Title:                      "A Study of Things",
			URL:                        "https://doi.org/10.1/a",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("legacy mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("closed datacite", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		w := &model.Work{DOI: "10.5281/zenodo.1", Record: record("Some Press")}
		e.Recalculate(context.Background(), w)

		got := e.Legacy(w)
		if got.DOIResolver != ResolverDataCite {
			t.Errorf("DOIResolver = %q", got.DOIResolver)
		}
		if got.IsFreeToRead || got.Evidence != model.EvidenceClosed || got.License != "" {
			t.Errorf("legacy = %+v, want closed", got)
		}
		if !got.IsSubscriptionJournal {
			t.Error("unknown journal must count as subscription")
		}
	})
}

func TestRefreshHybridScrape(t *testing.T) {
	t.Parallel()

	t.Run("open page without pdf", func(t *testing.T) {
		t.Parallel()

		c := newClock()
		ps := &fakePageScraper{result: scrape.Result{IsOpen: true, Evidence: "open (via free article)", License: "cc-by"}}
		e := newEngine(t, c, WithPageScraper(ps))
		w := &model.Work{DOI: "10.1/h", Record: record("Some Press")}

		if err := e.RefreshHybridScrape(context.Background(), w); err != nil {
			t.Fatalf("RefreshHybridScrape() error: %v", err)
		}
		want := model.ScrapeSnapshot{
			Evidence:    "open (via free article)",
			MetadataURL: "https://doi.org/10.1/h",
			License:     "cc-by",
			Updated:     c.Now(),
		}
		if diff := cmp.Diff(want, w.Scrape); diff != "" {
			t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"https://doi.org/10.1/h"}, ps.urls); diff != "" {
			t.Errorf("scraped urls mismatch (-want +got):\n%s", diff)
		}

		e.Recalculate(context.Background(), w)
		if !w.Response.IsOA || w.Response.DataStandard != DataStandardScrape {
			t.Errorf("IsOA/DataStandard = %v/%d", w.Response.IsOA, w.Response.DataStandard)
		}
		if got := w.Response.BestOALocation.OAColor; got != string(model.ColorHybrid) {
			t.Errorf("OAColor = %q, want hybrid", got)
		}
	})

	t.Run("failed scrape resets the snapshot", func(t *testing.T) {
		t.Parallel()

		c := newClock()
		e := newEngine(t, c, WithPageScraper(&fakePageScraper{err: errBoom}))
		w := &model.Work{
			DOI:    "10.1/h",
			Scrape: model.ScrapeSnapshot{Evidence: "open (via free pdf)", PDFURL: "https://pub.example/1.pdf"},
		}

		if err := e.RefreshHybridScrape(context.Background(), w); !errors.Is(err, errBoom) {
			t.Errorf("RefreshHybridScrape() error = %v, want boom", err)
		}
		if w.Scrape.IsOpen() || !w.Scrape.Updated.Equal(c.Now()) {
			t.Errorf("snapshot = %+v", w.Scrape)
		}
	})

	t.Run("no scraper", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, newClock())
		if err := e.RefreshHybridScrape(context.Background(), &model.Work{DOI: "10.1/a"}); !errors.Is(err, ErrNoPageScraper) {
			t.Errorf("RefreshHybridScrape() error = %v, want ErrNoPageScraper", err)
		}
	})
}

func TestRefreshBatch(t *testing.T) {
	t.Parallel()

	store := &workStore{works: map[string]*model.Work{
		"10.1/a": {DOI: "10.1/a", Record: record("Open Press")},
		"10.1/b": {DOI: "10.1/b", Record: record("Some Press")},
	}}
	e := newEngine(t, newClock())
	bp := pipeline.NewBatchProcessor(pipeline.WithConcurrency(2))

	report := e.RefreshBatch(context.Background(), store, []string{"10.1/a", "10.1/b", "10.1/missing"}, bp, false)
	if report.Succeeded() != 2 {
		t.Errorf("Succeeded() = %d, want 2", report.Succeeded())
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].ID != "10.1/missing" || !errors.Is(failed[0].Err, ErrWorkNotFound) {
		t.Errorf("Failed() = %+v", failed)
	}
	if !store.works["10.1/a"].Response.IsOA || store.works["10.1/b"].Response.IsOA {
		t.Error("batch results do not match the works")
	}
	if len(store.saved) != 2 {
		t.Errorf("saved = %v", store.saved)
	}
}

func TestRefreshBatchEach(t *testing.T) {
	t.Parallel()

	store := &workStore{works: map[string]*model.Work{
		"10.1/a": {DOI: "10.1/a", Record: record("Open Press")},
		"10.1/b": {DOI: "10.1/b", Record: record("Some Press")},
	}}
	e := newEngine(t, newClock())

	var mu sync.Mutex
	visited := make(map[string]*model.Work)
	report := e.RefreshBatchEach(context.Background(), store, []string{"10.1/a", "10.1/b", "10.1/missing"},
		pipeline.NewBatchProcessor(pipeline.WithConcurrency(2)), false,
		func(w *model.Work) {
			mu.Lock()
			defer mu.Unlock()
			visited[w.DOI] = w
		})

	if report.Succeeded() != 2 || len(visited) != 2 {
		t.Fatalf("Succeeded() = %d, visited = %d; want 2 and 2", report.Succeeded(), len(visited))
	}
	if len(visited["10.1/a"].Locations) == 0 {
		t.Error("expected the open work to keep its transient locations")
	}
	if got := e.Legacy(visited["10.1/a"]); !got.IsFreeToRead {
		t.Errorf("Legacy() of the visited work = %+v, want free to read", got)
	}
}
