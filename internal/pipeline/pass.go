package pipeline

import (
	"fmt"
	"time"

	"github.com/nao1215/oadoi/internal/metadata"
	"github.com/nao1215/oadoi/internal/model"
)

// Pass is the state shared by the probes of one recalculation pass.
type Pass struct {
	// Work is the work being recalculated.
	Work *model.Work

	// Biblio holds the fields derived from the raw record for this pass.
	Biblio metadata.Biblio

	// Matches are the filtered repository matches of the work.
	Matches []model.RecordMatch

	// PMCLinks are the PubMed Central links known for the DOI.
	PMCLinks []model.PMCLink

	// GreenScrape allows the green probe to scrape never-matched records.
	GreenScrape bool

	// Now is the timestamp stamped on fresh locations.
	Now time.Time

	// Locations collects the candidates.
	Locations []model.Location

	// Performed lists the probes that ran, in order.
	Performed []string
}

// NewPass creates a pass for work.
func NewPass(work *model.Work, biblio metadata.Biblio, now time.Time) *Pass {
	return &Pass{
		Work:        work,
		Biblio:      biblio,
		Now:         now,
		GreenScrape: true,
	}
}

// Add appends a candidate location.
func (p *Pass) Add(loc model.Location) {
	if loc.DOI == "" {
		loc.DOI = p.Work.DOI
	}
	p.Locations = append(p.Locations, loc)
}

// Replace discards every candidate collected so far and keeps only locs.
func (p *Pass) Replace(locs ...model.Location) {
	p.Locations = p.Locations[:0]
	for _, loc := range locs {
		p.Add(loc)
	}
}

// RecordError appends a probe failure to the work's error log.
func (p *Pass) RecordError(probe string, err error) {
	if err == nil {
		return
	}
	p.Work.Errors.Append(fmt.Sprintf("%s: %v", probe, err))
}
