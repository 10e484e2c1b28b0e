package consolidate

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/nao1215/oadoi/internal/model"
)

// Result is the outcome of consolidation.
type Result struct {
	// Best is the winning location, or nil when no candidate survived.
	Best *model.Location

	// Locations is the deduplicated ranked list with the winner flagged.
	Locations []model.Location

	// Excluded holds the candidates dropped as noncompliant.
	Excluded []model.Location

	// IsOpen is true when the winner has a usable fulltext URL.
	IsOpen bool
}

// Consolidator ranks and deduplicates candidates.
type Consolidator struct {
	logger *slog.Logger
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consolidator) {
		c.logger = logger
	}
}

// New creates a Consolidator.
func New(opts ...Option) *Consolidator {
	c := &Consolidator{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Consolidate filters, orders, deduplicates and picks the winner. The input
// slice is not modified. noncompliant holds URL fragments reported for the
// work; matching is case-insensitive containment.
func (c *Consolidator) Consolidate(candidates []model.Location, noncompliant []string) Result {
	var res Result

	kept := make([]model.Location, 0, len(candidates))
	for _, loc := range candidates {
		loc.IsBest = false
		loc.Noncompliant = false
		if isNoncompliant(loc, noncompliant) {
			loc.Noncompliant = true
			c.logger.Debug("dropping noncompliant location",
				"doi", loc.DOI,
				"url", loc.BestURL(),
			)
			res.Excluded = append(res.Excluded, loc)
			continue
		}
		kept = append(kept, loc)
	}

	slices.SortFunc(kept, Compare)
	res.Locations = Dedup(kept)

	if len(res.Locations) == 0 {
		return res
	}
	res.Locations[0].IsBest = true
	best := res.Locations[0]
	res.Best = &best
	res.IsOpen = best.BestURL() != ""
	return res
}

// Compare is the total order over candidates: a negative result means a
// ranks before b. Candidates without a URL rank last. Every field takes
// part so that the order of the input never influences the outcome.
func Compare(a, b model.Location) int {
	return cmp.Or(
		cmp.Compare(urlRank(a), urlRank(b)),
		cmp.Compare(a.Version.Rank(), b.Version.Rank()),
		cmp.Compare(a.OAColor().Rank(), b.OAColor().Rank()),
		cmp.Compare(scrapedRank(a), scrapedRank(b)),
		strings.Compare(a.BestURL(), b.BestURL()),
		strings.Compare(a.Evidence, b.Evidence),
		strings.Compare(a.License, b.License),
		strings.Compare(a.PDFURL, b.PDFURL),
		strings.Compare(a.MetadataURL, b.MetadataURL),
		strings.Compare(a.RepositoryID, b.RepositoryID),
		strings.Compare(a.RecordID, b.RecordID),
		strings.Compare(string(a.Host), string(b.Host)),
		strings.Compare(string(a.Color), string(b.Color)),
		a.Updated.Compare(b.Updated),
	)
}

func urlRank(l model.Location) int {
	if l.BestURL() != "" {
		return 0
	}
	return 1
}

func scrapedRank(l model.Location) int {
	if l.Scraped {
		return 0
	}
	return 1
}

// Dedup keeps the first location of every canonical URL. The input must
// already be ordered.
func Dedup(sorted []model.Location) []model.Location {
	seen := make(map[string]struct{}, len(sorted))
	out := make([]model.Location, 0, len(sorted))
	for _, loc := range sorted {
		key := loc.BestURL()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, loc)
	}
	return out
}

func isNoncompliant(loc model.Location, fragments []string) bool {
	if len(fragments) == 0 {
		return false
	}
	urls := []string{
		strings.ToLower(loc.PDFURL),
		strings.ToLower(loc.MetadataURL),
	}
	for _, fragment := range fragments {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if fragment == "" {
			continue
		}
		for _, u := range urls {
			if u != "" && strings.Contains(u, fragment) {
				return true
			}
		}
	}
	return false
}
