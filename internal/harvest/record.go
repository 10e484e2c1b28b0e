package harvest

import (
	"fmt"
	"strings"

	"github.com/nao1215/oadoi/internal/match"
	"github.com/nao1215/oadoi/internal/model"
)

// ToRepositoryRecord maps a harvested record onto the stored shape.
// repositoryID is used when the record names no collection.
func ToRepositoryRecord(r Record, feedURL, repositoryID string) model.RepositoryRecord {
	rec := model.RepositoryRecord{
		ID:              r.Identifier,
		Title:           r.Field("title"),
		Authors:         r.Fields["creator"],
		DeclaredOA:      r.Field("oa"),
		License:         r.Field("rights"),
		URLs:            r.Fields["identifier"],
		Relations:       r.Fields["relation"],
		Sources:         r.Fields["collname"],
		FeedURL:         feedURL,
		RepositoryID:    repositoryID,
		RecordTimestamp: r.Datestamp,
		Raw:             r.Raw,
	}
	rec.NormalizedTitle = match.NormalizeTitle(rec.Title)
	rec.DOI = ExtractDOI(rec.URLs)
	if len(rec.Sources) > 0 {
		rec.RepositoryID = rec.Sources[0]
	}
	return rec
}

// ExtractDOI returns the clean DOI of the last DOI-shaped URL in the list.
// Unparseable candidates are ignored.
func ExtractDOI(urls []string) string {
	doi := ""
	for _, u := range urls {
		if u == "" {
			continue
		}
		if !model.IsDOIURL(u) && !strings.HasPrefix(strings.ToLower(u), "doi:") {
			continue
		}
		if clean, err := model.CleanDOI(u); err == nil {
			doi = clean
		}
	}
	return doi
}

// Validate decides whether a harvested record is kept. It returns
// ErrIncompleteRecord or ErrClosedRecord for records that are skipped.
func Validate(rec model.RepositoryRecord) error {
	switch {
	case rec.ID == "":
		return fmt.Errorf("%w: no id", ErrIncompleteRecord)
	case rec.Title == "":
		return fmt.Errorf("%w: %s has no title", ErrIncompleteRecord, rec.ID)
	case len(rec.URLs) == 0:
		return fmt.Errorf("%w: %s has no url", ErrIncompleteRecord, rec.ID)
	case rec.DeclaredOA == model.DeclaredClosed:
		return fmt.Errorf("%w: %s", ErrClosedRecord, rec.ID)
	}
	return nil
}
