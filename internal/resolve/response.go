package resolve

import (
	"strings"
	"time"

	"github.com/nao1215/oadoi/internal/consolidate"
	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/metadata"
	"github.com/nao1215/oadoi/internal/model"
)

// Data standards reported with every response.
const (
	DataStandardBasic  = 1
	DataStandardScrape = 2
)

// DOI resolvers reported by the legacy response.
const (
	ResolverCrossref = "crossref"
	ResolverDataCite = "datacite"
)

const timestampLayout = "2006-01-02T15:04:05.000000"

// titleWorkarounds replaces titles that differ between the DOI record and
// the repository copies of the work.
var titleWorkarounds = map[string]string{
	"10.1016/j.astropartphys.2007.12.004": "In situ radioglaciological measurements near Taylor Dome, Antarctica and implications for UHE neutrino astronomy",
	"10.1016/s0375-9601(02)01803-0":       "Universal quantum computation using only projective measurement, quantum memory, and preparation of the 0 state",
	"10.1103/physreva.65.062312":          "An entanglement monotone derived from Grover's algorithm",
	"10.1038/493159a":                     "Altmetrics: Value all research products",
	"10.1038/23891":                       "Complete quantum teleportation using nuclear magnetic resonance",
	"10.1515/fabl.1988.29.1.21":           "Thesen zur Verabschiedung des Begriffs der 'historischen Sage'",
	"10.1123/iscj.2016-0037":              "METACOGNITION AND PROFESSIONAL JUDGMENT AND DECISION MAKING: IMPORTANCE, APPLICATION AND EVALUATION",
}

// applyLicenseWorkaround labels unlicensed Harvard DASH copies.
func applyLicenseWorkaround(loc *model.Location) {
	if !strings.Contains(loc.BestURL(), "harvard.edu/") {
		return
	}
	if !loc.HasLicense() {
		loc.License = "cc-by-nc"
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func dataStandard(w *model.Work) int {
	if !w.Scrape.Updated.IsZero() && w.Errors.Empty() {
		return DataStandardScrape
	}
	return DataStandardBasic
}

func (e *Engine) buildResponse(w *model.Work, biblio metadata.Biblio, res consolidate.Result, now time.Time) *model.Response {
	isOA := res.IsOpen && res.Best != nil
	_, inRegistry := e.classifier.RegistryLicense(biblio.ISSNs, biblio.AllJournals, biblio.Year)

	resp := &model.Response{
		DOI:                        w.DOI,
		DOIURL:                     w.URL(),
		IsOA:                       isOA,
		OALocations:                []model.LocationResponse{},
		DataStandard:               dataStandard(w),
		Title:                      w.Title,
		JournalIsInDOAJ:            isOA && inRegistry,
		JournalIsOA:                isOA && (inRegistry || e.classifier.IsOAPublisher(biblio.Publisher)),
		JournalISSNs:               biblio.DisplayISSNs(),
		JournalName:                biblio.Journal,
		Publisher:                  biblio.Publisher,
		PublishedDate:              w.PublishedDate,
		Updated:                    formatTimestamp(now),
		Genre:                      biblio.Genre,
		Authors:                    biblio.RawAuthors,
		ReportedNoncompliantCopies: []string{},
		Error:                      w.Errors.String(),
	}
	if biblio.Year != 0 {
		year := biblio.Year
		resp.Year = &year
	}
	for _, loc := range res.Excluded {
		if u := loc.BestURL(); u != "" {
			resp.ReportedNoncompliantCopies = append(resp.ReportedNoncompliantCopies, u)
		}
	}

	if !isOA {
		return resp
	}
	for _, loc := range res.Locations {
		if loc.BestURL() == "" {
			continue
		}
		lr := model.NewLocationResponse(loc)
		if loc.IsBest {
			best := lr
			resp.BestOALocation = &best
		}
		resp.OALocations = append(resp.OALocations, lr)
	}
	return resp
}

// Legacy projects the last pass of w onto the flat v1 response. It must be
// called after Recalculate.
func (e *Engine) Legacy(w *model.Work) model.LegacyResponse {
	biblio := e.normalizer.Normalize(w.Record)

	legacy := model.LegacyResponse{
		AlgorithmVersion:           dataStandard(w),
		DOIResolver:                e.resolver(w),
		Evidence:                   model.EvidenceClosed,
		OAColor:                    string(model.ColorClosed),
		ReportedNoncompliantCopies: []string{},
		DOI:                        w.DOI,
		Title:                      w.Title,
		Error:                      w.Errors.String(),
		IsSubscriptionJournal: e.classifier.IsSubscriptionJournal(
			biblio.ISSNs, biblio.AllJournals, biblio.Year, biblio.Publisher, w.DOI, w.URL(),
		),
	}
	if w.DOI != "" {
		legacy.URL = w.URL()
	}
	if w.Response != nil && w.Response.ReportedNoncompliantCopies != nil {
		legacy.ReportedNoncompliantCopies = w.Response.ReportedNoncompliantCopies
	}

	var best *model.Location
	for i := range w.Locations {
		if w.Locations[i].IsBest {
			best = &w.Locations[i]
			break
		}
	}
	if best == nil || best.BestURL() == "" {
		return legacy
	}
	legacy.Evidence = best.Evidence
	legacy.FreeFulltextURL = best.BestURL()
	legacy.IsFreeToRead = true
	legacy.License = best.License
	legacy.IsBOAILicense = heuristics.IsBOAILicense(best.License)
	legacy.OAColor = string(best.OAColor())
	return legacy
}

func (e *Engine) resolver(w *model.Work) string {
	switch {
	case w.DOI == "":
		return ""
	case e.classifier.IsDataCitePrefix(w.DOI):
		return ResolverDataCite
	case len(w.Record) > 0 && w.Record["error"] == nil:
		return ResolverCrossref
	}
	return ""
}
