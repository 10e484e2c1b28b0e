package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/oadoi/internal/heuristics"
	"github.com/nao1215/oadoi/internal/model"
)

const (
	pdfContentType   = "application/pdf"
	htmlAcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

var (
	openAccessStatement = regexp.MustCompile(`(?i)\b(this (article|paper|work) is (an )?open access|open access article distributed under|freely available)\b`)
	pdfLinkText         = regexp.MustCompile(`(?i)\b(download|full[- ]?text|view)?\s*pdf\b`)
	supplementLink      = regexp.MustCompile(`(?i)(supplement|suppl|appendix|figure|poster)`)
)

// Session owns one fetched page. Close must be called on every path.
type Session struct {
	scraper     *Scraper
	pageURL     *url.URL
	contentType string
	resp        *http.Response
	closed      bool
}

// Open fetches pageURL and returns a session over the response. Non-2xx
// responses are returned as ErrHTTPStatus and need no Close.
func (s *Scraper) Open(ctx context.Context, pageURL string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", htmlAcceptHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, pageURL)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	return &Session{
		scraper:     s,
		pageURL:     resp.Request.URL,
		contentType: mediaType,
		resp:        resp,
	}, nil
}

// Close releases the response. It is safe to call more than once.
func (ss *Session) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	return ss.resp.Body.Close()
}

// URL returns the final URL of the page after redirects.
func (ss *Session) URL() string {
	return ss.pageURL.String()
}

// Result reads the page and extracts the OA evidence.
func (ss *Session) Result(ctx context.Context) (Result, error) {
	if ss.closed {
		return Result{}, ErrSessionClosed
	}

	if ss.contentType == pdfContentType {
		return Result{
			IsOpen:   true,
			PDFURL:   ss.URL(),
			Evidence: EvidenceFreePDF,
			Version:  model.VersionPublished,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(ss.resp.Body, ss.scraper.maxBodySize))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", ss.URL(), err)
	}
	if bytes.HasPrefix(body, []byte("%PDF")) {
		return Result{
			IsOpen:   true,
			PDFURL:   ss.URL(),
			Evidence: EvidenceFreePDF,
			Version:  model.VersionPublished,
		}, nil
	}

	root, err := parseHTML(body, ss.resp.Header.Get("Content-Type"))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrParse, ss.URL(), err)
	}
	doc := goquery.NewDocumentFromNode(root)
	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")

	res := Result{
		License: ss.license(doc),
		Version: guessVersion(text),
	}

	if pdf := ss.pdfLink(ctx, doc); pdf != "" {
		res.IsOpen = true
		res.PDFURL = pdf
		res.MetadataURL = ss.URL()
		res.Evidence = EvidenceFreePDF
		return res, nil
	}

	if heuristics.IsOpenLicense(res.License) {
		res.IsOpen = true
		res.MetadataURL = ss.URL()
		res.Evidence = EvidencePageLicense
		return res, nil
	}

	if openAccessStatement.MatchString(text) || doc.Find(".open-access, .openaccess, [data-open-access=true]").Length() > 0 {
		res.IsOpen = true
		res.MetadataURL = ss.URL()
		res.Evidence = EvidencePageOpenAccess
		return res, nil
	}

	return Result{}, nil
}

// parseHTML decodes body to UTF-8 using the BOM, the Content-Type charset
// or a meta charset tag, and parses it. Undeclared pages are sniffed.
func parseHTML(body []byte, contentType string) (*html.Node, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	return html.Parse(r)
}

// pdfLink looks for the citation_pdf_url meta tag first, then for anchors
// that look like a download link to the article itself.
func (ss *Session) pdfLink(ctx context.Context, doc *goquery.Document) string {
	var candidates []string
	doc.Find(`meta[name="citation_pdf_url"]`).Each(func(_ int, sel *goquery.Selection) {
		if href := ss.resolve(sel.AttrOr("content", "")); href != "" {
			candidates = append(candidates, href)
		}
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		text := strings.TrimSpace(sel.Text())
		if supplementLink.MatchString(href) || supplementLink.MatchString(text) {
			return
		}
		if strings.HasSuffix(strings.ToLower(href), ".pdf") || pdfLinkText.MatchString(text) {
			if resolved := ss.resolve(href); resolved != "" {
				candidates = append(candidates, resolved)
			}
		}
	})

	for _, candidate := range candidates {
		if !ss.scraper.checkPDF || ss.scraper.isPDF(ctx, candidate) {
			return candidate
		}
	}
	return ""
}

func (ss *Session) license(doc *goquery.Document) string {
	selectors := []struct {
		query string
		attr  string
	}{
		{`a[rel="license"]`, "href"},
		{`link[rel="license"]`, "href"},
		{`meta[name="dc.rights"]`, "content"},
		{`meta[name="DC.rights"]`, "content"},
		{`a[href*="creativecommons.org/licenses"]`, "href"},
		{`a[href*="creativecommons.org/publicdomain"]`, "href"},
	}
	for _, sel := range selectors {
		var found string
		doc.Find(sel.query).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = heuristics.NormalizeLicense(s.AttrOr(sel.attr, ""))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func (ss *Session) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || href == "#" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return ss.pageURL.ResolveReference(u).String()
}

// isPDF fetches the start of a linked file and checks that it is a PDF.
func (s *Scraper) isPDF(ctx context.Context, link string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Range", "bytes=0-1023")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("pdf link check failed", "url", link, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType == pdfContentType {
		return true
	}
	head, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false
	}
	return bytes.HasPrefix(head, []byte("%PDF"))
}

// guessVersion reads version statements that repositories print on their
// landing pages. Pages without one are treated as preprints.
func guessVersion(text string) model.Version {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "publishedversion"),
		strings.Contains(lower, "version of record"),
		strings.Contains(lower, "published version"):
		return model.VersionPublished
	case strings.Contains(lower, "acceptedversion"),
		strings.Contains(lower, "accepted manuscript"),
		strings.Contains(lower, "author accepted"),
		strings.Contains(lower, "postprint"):
		return model.VersionAccepted
	}
	return model.VersionSubmitted
}
