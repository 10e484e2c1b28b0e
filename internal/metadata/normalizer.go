package metadata

import (
	"encoding/json"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var whitespace = regexp.MustCompile(`\s+`)

// collapse trims s and folds runs of whitespace into one space.
func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Normalizer derives Biblio values from raw records.
type Normalizer struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used to decide whether a license has started.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLogger sets the logger for soft failures.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// Normalize derives every field of Biblio from record. A nil record yields
// the zero Biblio.
func (n *Normalizer) Normalize(record map[string]any) Biblio {
	var b Biblio
	if record == nil {
		return b
	}

	b.Title = collapse(first(record["title"]))

	journals := stringList(record["container-title"])
	for _, j := range journals {
		if j = collapse(j); j != "" {
			b.AllJournals = append(b.AllJournals, j)
		}
	}
	if len(b.AllJournals) > 0 {
		b.Journal = b.AllJournals[len(b.AllJournals)-1]
	}

	b.Publisher = collapse(str(record["publisher"]))
	b.Genre = collapse(str(record["type"]))
	b.AlternativeID = collapse(first(record["alternative-id"]))

	b.ISSNs = stringList(record["ISSN"])
	if len(b.ISSNs) == 0 {
		b.ISSNs = stringList(record["issn"])
	}

	if date, ok := n.issued(record["issued"]); ok {
		b.Year = date.Year()
		b.PublishedDate = date.Format(time.DateOnly)
	}

	b.RawAuthors, b.Authors = authors(record["author"])
	if len(b.Authors) > 0 {
		b.FirstAuthorLastName = b.Authors[0].Family
		b.LastAuthorLastName = b.Authors[len(b.Authors)-1].Family
	}

	b.Licenses = licenses(record["license"])
	now := n.now()
	for _, l := range b.Licenses {
		if l.URL == "" || (!l.Start.IsZero() && l.Start.After(now)) {
			continue
		}
		switch l.ContentVersion {
		case ContentVersionVOR:
			b.VORLicenseURLs = append(b.VORLicenseURLs, l.URL)
		case ContentVersionAM:
			b.AMLicenseURLs = append(b.AMLicenseURLs, l.URL)
		}
	}

	return b
}

// rawDateLayouts are tried in order on a raw issued string.
var rawDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
	"2006-01",
	"2006",
}

// issued parses the issue date: a raw string wins, otherwise the first
// date-parts triple with month and day defaulting to 1.
func (n *Normalizer) issued(v any) (time.Time, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return time.Time{}, false
	}

	for _, key := range []string{"raw", "date-time"} {
		raw := strings.TrimSpace(str(m[key]))
		if raw == "" {
			continue
		}
		for _, layout := range rawDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, true
			}
		}
		n.logger.Debug("unparseable issued date", "raw", raw)
	}

	outer, ok := m["date-parts"].([]any)
	if !ok || len(outer) == 0 {
		return time.Time{}, false
	}
	parts, ok := outer[0].([]any)
	if !ok || len(parts) == 0 {
		return time.Time{}, false
	}

	year, ok := integer(parts[0])
	if !ok || year <= 0 || year > 9999 {
		return time.Time{}, false
	}
	month, day := 1, 1
	if len(parts) > 1 {
		if v, ok := integer(parts[1]); ok && v >= 1 && v <= 12 {
			month = v
		}
	}
	if len(parts) > 2 {
		if v, ok := integer(parts[2]); ok && v >= 1 && v <= 31 {
			day = v
		}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Days past the end of the month roll over; clamp them back.
	if t.Month() != time.Month(month) {
		t = time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return t, true
}

func authors(v any) ([]any, []Author) {
	raw, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]Author, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Author{
			Given:    collapse(str(m["given"])),
			Family:   collapse(str(m["family"])),
			Sequence: str(m["sequence"]),
			ORCID:    str(m["ORCID"]),
		})
	}
	return raw, out
}

func licenses(v any) []License {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]License, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		l := License{
			URL:            strings.TrimSpace(str(m["URL"])),
			ContentVersion: strings.ToLower(str(m["content-version"])),
		}
		if start, ok := m["start"].(map[string]any); ok {
			if t, err := time.Parse(time.RFC3339, str(start["date-time"])); err == nil {
				l.Start = t
			}
		}
		out = append(out, l)
	}
	return out
}

// first returns the first element of an array, or the value itself when it
// is a scalar string.
func first(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		if len(val) > 0 {
			return str(val[0])
		}
	case []string:
		if len(val) > 0 {
			return val[0]
		}
	}
	return ""
}

func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// integer accepts the numeric shapes produced by JSON and YAML decoders.
func integer(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		return i, err == nil
	}
	return 0, false
}
