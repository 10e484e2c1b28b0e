package model

import (
	"strings"
	"time"
)

// OA flag values declared by harvested records.
const (
	DeclaredClosed = "0"
	DeclaredOpen   = "1"
)

// RepositoryRecord is one item harvested from an OAI-PMH feed: a candidate
// repository copy of a work.
type RepositoryRecord struct {
	// ID is the OAI identifier of the record.
	ID string

	Title           string
	NormalizedTitle string
	Authors         []string

	// DeclaredOA is the raw OA flag from the feed; "0" means closed.
	DeclaredOA string
	License    string
	URLs       []string
	Relations  []string
	Sources    []string

	// DOI is extracted from the URL list when one of them is a DOI.
	DOI string

	// FeedURL identifies the feed the record was harvested from.
	FeedURL      string
	RepositoryID string

	RecordTimestamp time.Time
	Raw             string

	ScrapeUpdated     time.Time
	ScrapePDFURL      string
	ScrapeMetadataURL string
	ScrapeLicense     string
	ScrapeVersion     Version

	// MatchCount counts successful matches against works; zero means the
	// record has never been scraped on behalf of a work.
	MatchCount int

	// Error is the last scrape error.
	Error string
}

// IsOpen reports whether the last scrape found a free copy.
func (r RepositoryRecord) IsOpen() bool {
	return r.ScrapePDFURL != "" || r.ScrapeMetadataURL != ""
}

// AuthorString joins the author list for substring matching.
func (r RepositoryRecord) AuthorString() string {
	return strings.Join(r.Authors, ", ")
}

// MatchKind labels how a repository record was matched to a work.
type MatchKind string

const (
	MatchDOI              MatchKind = "doi"
	MatchTitle            MatchKind = "title"
	MatchTitleFirstAuthor MatchKind = "title and first author"
	MatchTitleLastAuthor  MatchKind = "title and last author"
)

// Evidence returns the evidence label used for locations built from a
// match of this kind.
func (k MatchKind) Evidence() string {
	switch k {
	case MatchDOI:
		return EvidenceDOIMatch
	case MatchTitleFirstAuthor:
		return EvidenceFirstAuthorMatch
	case MatchTitleLastAuthor:
		return EvidenceLastAuthorMatch
	default:
		return EvidenceTitleMatch
	}
}

// RecordMatch is a repository record annotated with its match evidence.
type RecordMatch struct {
	Record RepositoryRecord
	Kind   MatchKind
}

// FeedSource is an OAI-PMH endpoint with its harvest checkpoint.
type FeedSource struct {
	// URL is the feed endpoint and identity.
	URL string

	LastHarvestStarted  time.Time
	LastHarvestFinished time.Time

	// LastHarvestedThrough is the checkpoint: the end of the window of the
	// last run that consumed the whole stream.
	LastHarvestedThrough time.Time
}

// PMCReleaseLive is the release status of PMC articles that are readable.
const PMCReleaseLive = "live"

// PMCLink ties a DOI to a PubMed Central article.
type PMCLink struct {
	DOI           string
	PMCID         string
	ReleaseStatus string

	// HasPublishedVersion is true when PMC hosts the version of record.
	HasPublishedVersion bool
}

// Version returns the manuscript version hosted by PMC.
func (p PMCLink) Version() Version {
	if p.HasPublishedVersion {
		return VersionPublished
	}
	return VersionAccepted
}
