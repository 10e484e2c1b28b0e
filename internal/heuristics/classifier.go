package heuristics

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_heuristics.yaml
var defaultHeuristics []byte

// RegistryEntry is one fully open journal.
type RegistryEntry struct {
	ISSN      string `yaml:"issn"`
	Title     string `yaml:"title"`
	StartYear int    `yaml:"start_year"`
	License   string `yaml:"license"`
}

// Lists is the YAML shape of a heuristics file.
type Lists struct {
	Registry         []RegistryEntry `yaml:"registry"`
	Publishers       []string        `yaml:"publishers"`
	DOIPrefixes      []string        `yaml:"doi_prefixes"`
	URLPrefixes      []string        `yaml:"url_prefixes"`
	DataCitePrefixes []string        `yaml:"datacite_prefixes"`
}

// Classifier answers the local OA questions. It is immutable once built and
// safe for concurrent use.
type Classifier struct {
	byISSN     map[string]RegistryEntry
	byTitle    map[string]RegistryEntry
	publishers map[string]struct{}
	doi        []string
	url        []string
	datacite   []string
}

// Default returns a Classifier built from the embedded lists.
func Default() *Classifier {
	c, err := Parse(defaultHeuristics)
	if err != nil {
		panic(fmt.Sprintf("embedded heuristics are invalid: %v", err))
	}
	return c
}

// Load reads a heuristics YAML file.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read heuristics file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a Classifier from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Classifier, error) {
	var lists Lists
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&lists); err != nil {
		return nil, err
	}
	return New(lists)
}

// New builds a Classifier from in-memory lists.
func New(lists Lists) (*Classifier, error) {
	c := &Classifier{
		byISSN:     make(map[string]RegistryEntry),
		byTitle:    make(map[string]RegistryEntry),
		publishers: make(map[string]struct{}),
	}

	for i, entry := range lists.Registry {
		issn := normalizeISSN(entry.ISSN)
		title := foldKey(entry.Title)
		if issn == "" && title == "" {
			return nil, fmt.Errorf("registry[%d]: %w", i, ErrEmptyRegistryEntry)
		}
		if issn != "" {
			c.byISSN[issn] = entry
		}
		if title != "" {
			c.byTitle[title] = entry
		}
	}

	for _, p := range lists.Publishers {
		if key := foldKey(p); key != "" {
			c.publishers[key] = struct{}{}
		}
	}

	var err error
	if c.doi, err = prefixes(lists.DOIPrefixes); err != nil {
		return nil, fmt.Errorf("doi_prefixes: %w", err)
	}
	if c.url, err = prefixes(lists.URLPrefixes); err != nil {
		return nil, fmt.Errorf("url_prefixes: %w", err)
	}
	if c.datacite, err = prefixes(lists.DataCitePrefixes); err != nil {
		return nil, fmt.Errorf("datacite_prefixes: %w", err)
	}
	return c, nil
}

func prefixes(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return nil, ErrBadPrefix
		}
		out = append(out, p)
	}
	return out, nil
}

// RegistryLicense reports whether the journal is in the OA registry for the
// given year. The returned license may be empty when the registry does not
// record one. A zero year skips the start-year check.
func (c *Classifier) RegistryLicense(issns, journals []string, year int) (string, bool) {
	for _, issn := range issns {
		if entry, ok := c.byISSN[normalizeISSN(issn)]; ok && entry.openIn(year) {
			return NormalizeLicense(entry.License), true
		}
	}
	for _, journal := range journals {
		if entry, ok := c.byTitle[foldKey(journal)]; ok && entry.openIn(year) {
			return NormalizeLicense(entry.License), true
		}
	}
	return "", false
}

func (e RegistryEntry) openIn(year int) bool {
	return e.StartYear == 0 || year == 0 || year >= e.StartYear
}

// IsOAPublisher reports whether every journal of the publisher is open.
func (c *Classifier) IsOAPublisher(publisher string) bool {
	_, ok := c.publishers[foldKey(publisher)]
	return ok
}

// IsOADOIPrefix reports whether the DOI belongs to an open repository.
func (c *Classifier) IsOADOIPrefix(doi string) bool {
	return hasAnyPrefix(strings.ToLower(doi), c.doi)
}

// IsOAURLPrefix reports whether the URL belongs to an open repository.
func (c *Classifier) IsOAURLPrefix(url string) bool {
	return hasAnyPrefix(strings.ToLower(url), c.url)
}

// IsDataCitePrefix reports whether the DOI is registered with DataCite.
func (c *Classifier) IsDataCitePrefix(doi string) bool {
	doi = strings.ToLower(doi)
	for _, p := range c.datacite {
		if strings.HasPrefix(doi, p+"/") {
			return true
		}
	}
	return false
}

// IsSubscriptionJournal reports whether none of the journal-level OA rules
// apply.
func (c *Classifier) IsSubscriptionJournal(issns, journals []string, year int, publisher, doi, url string) bool {
	if _, ok := c.RegistryLicense(issns, journals, year); ok {
		return false
	}
	return !c.IsOADOIPrefix(doi) && !c.IsOAPublisher(publisher) && !c.IsOAURLPrefix(url)
}

// OpenLicenseURL returns the first license URL that normalises to an open
// license.
func (c *Classifier) OpenLicenseURL(urls []string) (string, bool) {
	for _, u := range urls {
		if IsOpenLicense(NormalizeLicense(u)) {
			return u, true
		}
	}
	return "", false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func normalizeISSN(issn string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(issn), " ", ""))
}

func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
