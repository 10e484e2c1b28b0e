package metadata

import (
	"strings"
	"time"
)

// Author is one contributor of the work.
type Author struct {
	Given    string
	Family   string
	Sequence string
	ORCID    string
}

// Name returns "Given Family", or whichever part is known.
func (a Author) Name() string {
	return strings.TrimSpace(a.Given + " " + a.Family)
}

// License is one license entry of the raw record.
type License struct {
	URL            string
	ContentVersion string
	// Start is zero when the entry carries no start timestamp.
	Start time.Time
}

// Content versions used by license entries.
const (
	ContentVersionVOR = "vor"
	ContentVersionAM  = "am"
)

// Biblio holds the fields derived from a raw record. It is computed once per
// pass and shared by every consumer of that pass.
type Biblio struct {
	Title string

	// Journal is the last container title; records often list the
	// abbreviation before the full name.
	Journal     string
	AllJournals []string

	Publisher string
	Genre     string

	// Year is zero when the issue date is absent or malformed.
	Year int
	// PublishedDate is the issue date as YYYY-MM-DD, or empty.
	PublishedDate string

	FirstAuthorLastName string
	LastAuthorLastName  string
	Authors             []Author
	// RawAuthors is the untouched author array, exported as is.
	RawAuthors []any

	ISSNs         []string
	AlternativeID string

	Licenses []License
	// VORLicenseURLs are the currently valid version-of-record licenses.
	VORLicenseURLs []string
	// AMLicenseURLs are the currently valid author-manuscript licenses.
	AMLicenseURLs []string
}

// DisplayISSNs joins the ISSNs with commas.
func (b Biblio) DisplayISSNs() string {
	return strings.Join(b.ISSNs, ",")
}

// HasAuthors reports whether a surname is known for matching.
func (b Biblio) HasAuthors() bool {
	return b.FirstAuthorLastName != "" || b.LastAuthorLastName != ""
}
