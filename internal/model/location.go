package model

import (
	"strings"
	"time"
)

// Version identifies which manuscript version a location serves.
type Version string

const (
	// VersionSubmitted is a preprint, before peer review.
	VersionSubmitted Version = "submittedVersion"
	// VersionAccepted is the accepted author manuscript.
	VersionAccepted Version = "acceptedVersion"
	// VersionPublished is the version of record.
	VersionPublished Version = "publishedVersion"
)

// ParseVersion maps the common spellings of a version onto a Version.
// Unknown values return the empty Version.
func ParseVersion(s string) Version {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "submittedversion", "submitted", "preprint":
		return VersionSubmitted
	case "acceptedversion", "accepted", "am", "postprint":
		return VersionAccepted
	case "publishedversion", "published", "vor":
		return VersionPublished
	default:
		return ""
	}
}

// Rank orders versions; lower is more authoritative.
func (v Version) Rank() int {
	switch v {
	case VersionPublished:
		return 0
	case VersionAccepted:
		return 1
	case VersionSubmitted:
		return 2
	default:
		return 3
	}
}

// OAColor is the coarse open-access category of a location.
type OAColor string

const (
	ColorGold    OAColor = "gold"
	ColorDiamond OAColor = "diamond"
	ColorHybrid  OAColor = "hybrid"
	ColorBronze  OAColor = "bronze"
	ColorGreen   OAColor = "green"
	ColorClosed  OAColor = "closed"
)

// Rank orders colors; lower is more authoritative. Gold and diamond share
// the top rank.
func (c OAColor) Rank() int {
	switch c {
	case ColorGold, ColorDiamond:
		return 0
	case ColorHybrid:
		return 1
	case ColorBronze:
		return 2
	case ColorGreen:
		return 3
	default:
		return 4
	}
}

// HostType tells whether a location is served by a publisher or a repository.
type HostType string

const (
	HostPublisher  HostType = "publisher"
	HostRepository HostType = "repository"
)

// Evidence labels emitted by the probes.
const (
	EvidenceRegistry         = "oa journal (via doaj)"
	EvidencePublisherName    = "oa journal (via publisher name)"
	EvidenceDOIPrefix        = "oa repository (via doi prefix)"
	EvidenceURLPrefix        = "oa repository (via url prefix)"
	EvidenceLicense          = "open (via crossref license)"
	EvidenceManuscript       = "open (via crossref license, author manuscript)"
	EvidencePMC              = "oa repository (via pmcid lookup)"
	EvidenceManual           = "manual"
	EvidenceClosed           = "closed"
	EvidenceDOIMatch         = "oa repository (via OAI-PMH doi match)"
	EvidenceTitleMatch       = "oa repository (via OAI-PMH title match)"
	EvidenceFirstAuthorMatch = "oa repository (via OAI-PMH title and first author match)"
	EvidenceLastAuthorMatch  = "oa repository (via OAI-PMH title and last author match)"
)

// LicenseUnknown is the placeholder some sources use instead of leaving the
// license empty.
const LicenseUnknown = "unknown"

// Location is one piece of OA evidence: a URL believed to be free to read,
// produced by exactly one probe. Locations are rebuilt on every pass.
type Location struct {
	// DOI of the work this location belongs to.
	DOI string

	PDFURL      string
	MetadataURL string
	License     string
	Version     Version

	// Evidence is the label of the probe rule that produced the location.
	Evidence string

	// Color overrides the derived OA color. Only manual overrides set it.
	Color OAColor

	// Host overrides the derived host type.
	Host HostType

	RepositoryID string
	RecordID     string

	// Scraped is true when the evidence comes from fetching a page rather
	// than from declared metadata.
	Scraped bool

	// Noncompliant is set by the consolidator when the URL appears on the
	// reported-noncompliant list for the work.
	Noncompliant bool

	// IsBest flags the winner after consolidation.
	IsBest bool

	Updated time.Time
}

// BestURL is the canonical URL of the location: the PDF when known,
// otherwise the landing page.
func (l Location) BestURL() string {
	if l.PDFURL != "" {
		return l.PDFURL
	}
	return l.MetadataURL
}

// BestURLIsPDF reports whether BestURL points at a PDF.
func (l Location) BestURLIsPDF() bool {
	return l.PDFURL != ""
}

// HostType returns the explicit host when set, otherwise derives it from
// the evidence label.
func (l Location) HostType() HostType {
	if l.Host != "" {
		return l.Host
	}
	if strings.Contains(l.Evidence, "repository") {
		return HostRepository
	}
	return HostPublisher
}

// HasLicense reports whether the license is set to something meaningful.
func (l Location) HasLicense() bool {
	return l.License != "" && l.License != LicenseUnknown
}

// OAColor derives the color of the location.
func (l Location) OAColor() OAColor {
	if l.Color != "" {
		return l.Color
	}
	if l.Evidence == EvidenceClosed || l.BestURL() == "" {
		return ColorClosed
	}
	switch {
	case strings.HasPrefix(l.Evidence, "oa journal"):
		return ColorGold
	case strings.HasPrefix(l.Evidence, "oa repository"):
		return ColorGreen
	}
	if l.HostType() == HostRepository {
		return ColorGreen
	}
	if l.HasLicense() ||
		strings.Contains(l.Evidence, "hybrid") ||
		strings.Contains(l.Evidence, "via crossref license") {
		return ColorHybrid
	}
	return ColorBronze
}
