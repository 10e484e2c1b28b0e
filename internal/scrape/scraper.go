package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/oadoi/internal/model"
)

// Evidence labels produced by page scrapes.
const (
	EvidenceFreePDF        = "open (via free pdf)"
	EvidencePageLicense    = "open (via page says license)"
	EvidencePageOpenAccess = "open (via page says Open Access)"
)

// Defaults.
const (
	DefaultUserAgent   = "oadoi/1.0 (+https://github.com/nao1215/oadoi)"
	DefaultMaxBodySize = 5 * 1024 * 1024

	defaultRequestTimeout = 30 * time.Second
)

// Result is what a scrape found.
type Result struct {
	IsOpen      bool
	PDFURL      string
	MetadataURL string
	License     string
	Evidence    string
	Version     model.Version
}

// Scraper fetches landing pages.
type Scraper struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	checkPDF    bool
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) {
		s.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		s.userAgent = ua
	}
}

// WithMaxBodySize limits how much of a page is read.
func WithMaxBodySize(size int64) Option {
	return func(s *Scraper) {
		if size > 0 {
			s.maxBodySize = size
		}
	}
}

// WithPDFCheck enables or disables fetching linked PDFs to confirm that
// they really are PDFs.
func WithPDFCheck(check bool) Option {
	return func(s *Scraper) {
		s.checkPDF = check
	}
}

// WithClock sets the clock used for scrape timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = logger
	}
}

// New creates a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		checkPDF:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: defaultRequestTimeout}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Scrape opens a session on pageURL, reads it and closes it.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (Result, error) {
	session, err := s.Open(ctx, pageURL)
	if err != nil {
		return Result{}, err
	}
	defer session.Close()

	return session.Result(ctx)
}

// ScrapeRecord scrapes the landing page of a harvested record and returns
// the record with its scrape fields replaced.
func (s *Scraper) ScrapeRecord(ctx context.Context, rec model.RepositoryRecord) (model.RepositoryRecord, error) {
	pageURL := landingPage(rec.URLs)
	if pageURL == "" {
		return rec, fmt.Errorf("%w: %s", ErrNoURL, rec.ID)
	}

	res, err := s.Scrape(ctx, pageURL)
	if err != nil {
		return rec, err
	}

	rec.ScrapeUpdated = s.now().UTC()
	rec.ScrapePDFURL = ""
	rec.ScrapeMetadataURL = ""
	rec.ScrapeLicense = ""
	rec.ScrapeVersion = ""
	rec.Error = ""
	if res.IsOpen {
		rec.ScrapePDFURL = res.PDFURL
		rec.ScrapeMetadataURL = res.MetadataURL
		if rec.ScrapeMetadataURL == "" {
			rec.ScrapeMetadataURL = pageURL
		}
		rec.ScrapeLicense = res.License
		if rec.ScrapeLicense == "" {
			rec.ScrapeLicense = rec.License
		}
		rec.ScrapeVersion = res.Version
	}
	return rec, nil
}

// landingPage prefers the first non-DOI http(s) URL of a record.
func landingPage(urls []string) string {
	var fallback string
	for _, u := range urls {
		lower := strings.ToLower(u)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		if model.IsDOIURL(u) {
			if fallback == "" {
				fallback = u
			}
			continue
		}
		return u
	}
	return fallback
}
