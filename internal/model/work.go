package model

import (
	"strings"
	"time"
)

// GenreComponent is the genre of sub-article records (figures, tables,
// supplementary files). Components never signal a changed response.
const GenreComponent = "component"

// ScrapeSnapshot is the persisted result of the last landing-page scrape.
// Probes read it; only an explicit refresh rewrites it.
type ScrapeSnapshot struct {
	Evidence    string    `json:"evidence,omitempty"`
	PDFURL      string    `json:"pdf_url,omitempty"`
	MetadataURL string    `json:"metadata_url,omitempty"`
	License     string    `json:"license,omitempty"`
	Updated     time.Time `json:"updated,omitzero"`
}

// IsOpen reports whether the snapshot holds usable OA evidence.
func (s ScrapeSnapshot) IsOpen() bool {
	return s.Evidence != "" && s.Evidence != EvidenceClosed
}

// Summary holds the flattened best-location fields persisted next to the
// canonical response so that they can be queried without decoding it.
type Summary struct {
	IsOA         bool
	BestURL      string
	BestEvidence string
	BestHost     HostType
	BestVersion  Version
	BestRepoID   string
}

// ErrorLog accumulates error descriptions for a single work. It is append
// only for the duration of a pass.
type ErrorLog struct {
	entries []string
}

// Append records a description; empty strings are ignored.
func (e *ErrorLog) Append(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	e.entries = append(e.entries, msg)
}

// Entries returns a copy of the recorded descriptions.
func (e *ErrorLog) Entries() []string {
	out := make([]string, len(e.entries))
	copy(out, e.entries)
	return out
}

// Empty reports whether nothing has been recorded.
func (e *ErrorLog) Empty() bool {
	return len(e.entries) == 0
}

// Reset clears the log at the start of a pass.
func (e *ErrorLog) Reset() {
	e.entries = nil
}

// String joins the entries into the per-work error string.
func (e *ErrorLog) String() string {
	return strings.Join(e.entries, "; ")
}

// Work is a scholarly work identified by its DOI.
type Work struct {
	// DOI is the clean DOI and primary key.
	DOI string

	// Record is the opaque bibliographic record from the metadata supplier.
	Record map[string]any

	// Title is the persisted title; it may differ from the record title
	// when a workaround applies.
	Title           string
	NormalizedTitle string
	PublishedDate   string

	Scrape ScrapeSnapshot

	// Response is the canonical response of the last pass.
	Response *Response

	Summary Summary

	// LastChanged is bumped only when the response materially changed.
	LastChanged time.Time
	// Updated is stamped on every pass.
	Updated time.Time

	Errors ErrorLog

	// Invalid marks works whose identity could not be established.
	Invalid bool

	// Rand spreads scheduled refreshes over time.
	Rand float64

	// Locations is transient: rebuilt on every pass, never persisted.
	Locations []Location
}

// URL returns the DOI resolver URL of the work.
func (w *Work) URL() string {
	return DOIURL(w.DOI)
}
