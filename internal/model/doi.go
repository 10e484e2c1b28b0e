package model

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidDOI is returned when an identifier cannot be cleaned into a DOI.
// Works carrying an invalid DOI are kept but excluded from OA determination.
var ErrInvalidDOI = errors.New("invalid doi")

// doiPrefixes are stripped, in order, before validation.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"dx.doi.org/",
	"doi:",
}

// CleanDOI normalizes a raw identifier into the canonical DOI form used as
// the primary key of a Work: lower case, no resolver prefix, no whitespace.
func CleanDOI(raw string) (string, error) {
	doi := strings.ToLower(strings.TrimSpace(raw))
	if unescaped, err := url.PathUnescape(doi); err == nil {
		doi = unescaped
	}

	for _, prefix := range doiPrefixes {
		doi = strings.TrimPrefix(doi, prefix)
	}
	doi = strings.TrimSpace(doi)
	doi = strings.Join(strings.Fields(doi), "")

	// DOIs embedded in longer strings (e.g. "doi: 10.1/x" in a repository
	// identifier) start at the first "10." occurrence.
	if idx := strings.Index(doi, "10."); idx > 0 {
		doi = doi[idx:]
	}

	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return "", ErrInvalidDOI
	}
	if strings.HasSuffix(doi, "/") {
		return "", ErrInvalidDOI
	}
	return doi, nil
}

// IsDOIURL reports whether a URL points at a DOI resolver.
func IsDOIURL(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(lower, "http://doi.org/10.") ||
		strings.HasPrefix(lower, "https://doi.org/10.") ||
		strings.HasPrefix(lower, "http://dx.doi.org/10.") ||
		strings.HasPrefix(lower, "https://dx.doi.org/10.") ||
		strings.HasPrefix(lower, "doi:")
}

// DOIURL returns the resolver URL for a clean DOI.
func DOIURL(doi string) string {
	if doi == "" {
		return ""
	}
	return "https://doi.org/" + doi
}
