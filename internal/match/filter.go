package match

import (
	"log/slog"
	"strings"

	"github.com/nao1215/oadoi/internal/model"
)

// Default thresholds.
const (
	// DefaultMinTitleLength is the shortest normalized title, exclusive,
	// that may be matched by title.
	DefaultMinTitleLength = 21
	// DefaultMaxPerRepository is the number of title matches from one
	// repository that marks the matches as spam.
	DefaultMaxPerRepository = 10
)

// DefaultCommonTitles are normalized titles shared by too many works to
// identify one of them.
var DefaultCommonTitles = []string{
	"editorial",
	"editorialboard",
	"introduction",
	"bookreviews",
	"lettereditor",
	"lettertoeditor",
	"correspondence",
	"erratum",
	"corrigendum",
	"abstracts",
	"preface",
	"foreword",
	"contents",
	"tableofcontents",
	"indexauthors",
	"obituary",
	"newsandviews",
	"frontmatter",
	"backmatter",
	"conferenceproceedings",
	"informationforauthors",
	"instructionsforauthors",
	"issueinformation",
	"reviewersthankyou",
	"acknowledgementreviewers",
	"acknowledgmentreviewers",
}

// Subject holds the fields of a work that take part in matching.
type Subject struct {
	NormalizedTitle     string
	FirstAuthorLastName string
	LastAuthorLastName  string
}

// Filter selects the repository records that may serve as evidence.
type Filter struct {
	minTitleLength   int
	maxPerRepository int
	common           map[string]struct{}
	logger           *slog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithMinTitleLength sets the too-short threshold.
func WithMinTitleLength(n int) Option {
	return func(f *Filter) {
		f.minTitleLength = n
	}
}

// WithMaxPerRepository sets the anti-spam threshold.
func WithMaxPerRepository(n int) Option {
	return func(f *Filter) {
		f.maxPerRepository = n
	}
}

// WithCommonTitles replaces the too-common title list. Titles are
// normalized before use.
func WithCommonTitles(titles []string) Option {
	return func(f *Filter) {
		f.common = make(map[string]struct{}, len(titles))
		for _, t := range titles {
			f.common[NormalizeTitle(t)] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) {
		f.logger = logger
	}
}

// NewFilter creates a Filter with the default thresholds.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		minTitleLength:   DefaultMinTitleLength,
		maxPerRepository: DefaultMaxPerRepository,
	}
	WithCommonTitles(DefaultCommonTitles)(f)
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// TitleIsTooShort reports whether a normalized title is too short to match.
func (f *Filter) TitleIsTooShort(normalized string) bool {
	return len(normalized) <= f.minTitleLength
}

// TitleIsTooCommon reports whether a normalized title is shared by too
// many works.
func (f *Filter) TitleIsTooCommon(normalized string) bool {
	_, ok := f.common[normalized]
	return ok
}

// Apply filters and labels the candidate records of a work. Title matches
// come first, followed by DOI matches; a record found both ways is labelled
// as a DOI match.
func (f *Filter) Apply(subject Subject, byDOI, byTitle []model.RepositoryRecord) []model.RecordMatch {
	titled := f.titleMatches(subject, byTitle)

	if repo, n := busiestRepository(titled); n >= f.maxPerRepository {
		f.logger.Info("too many title matches from one repository, dropping title matches",
			"repository", repo,
			"count", n,
		)
		titled = nil
	}

	out := make([]model.RecordMatch, 0, len(titled)+len(byDOI))
	index := make(map[string]int, len(titled)+len(byDOI))
	for _, m := range titled {
		index[m.Record.ID] = len(out)
		out = append(out, m)
	}
	for _, rec := range byDOI {
		if i, ok := index[rec.ID]; ok {
			out[i].Kind = model.MatchDOI
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, model.RecordMatch{Record: rec, Kind: model.MatchDOI})
	}
	return out
}

func (f *Filter) titleMatches(subject Subject, records []model.RepositoryRecord) []model.RecordMatch {
	title := subject.NormalizedTitle
	if title == "" || f.TitleIsTooShort(title) || f.TitleIsTooCommon(title) {
		return nil
	}

	first := Normalize(subject.FirstAuthorLastName)
	last := Normalize(subject.LastAuthorLastName)

	out := make([]model.RecordMatch, 0, len(records))
	for _, rec := range records {
		kind := model.MatchTitle
		if (first != "" || last != "") && len(rec.Authors) > 0 {
			authors := Normalize(rec.AuthorString())
			switch {
			case first != "" && strings.Contains(authors, first):
				kind = model.MatchTitleFirstAuthor
			case last != "" && strings.Contains(authors, last):
				kind = model.MatchTitleLastAuthor
			default:
				f.logger.Debug("author check failed, skipping record",
					"record", rec.ID,
				)
				continue
			}
		}
		out = append(out, model.RecordMatch{Record: rec, Kind: kind})
	}
	return out
}

func busiestRepository(matches []model.RecordMatch) (string, int) {
	counts := make(map[string]int)
	var repo string
	var best int
	for _, m := range matches {
		counts[m.Record.RepositoryID]++
		if n := counts[m.Record.RepositoryID]; n > best {
			repo, best = m.Record.RepositoryID, n
		}
	}
	return repo, best
}
