package harvest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultRetryDelay is the pause before re-requesting a page that
	// answered 503.
	DefaultRetryDelay = 3 * time.Second

	// DefaultMaxRetries bounds the 503 retries of a single page.
	DefaultMaxRetries = 5

	// DefaultRequestTimeout bounds a single page request.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultUserAgent identifies the harvester to feed operators.
	DefaultUserAgent = "oadoi-harvester/1.0"

	// maxPageSize bounds the body read for one page.
	maxPageSize = 64 << 20

	// dateLayout is the OAI-PMH day granularity.
	dateLayout = "2006-01-02"
)

// ListParams are the arguments of the initial ListRecords request.
type ListParams struct {
	MetadataPrefix string
	From           time.Time
	Until          time.Time
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	v.Set("verb", "ListRecords")
	v.Set("metadataPrefix", p.MetadataPrefix)
	if !p.From.IsZero() {
		v.Set("from", p.From.UTC().Format(dateLayout))
	}
	if !p.Until.IsZero() {
		v.Set("until", p.Until.UTC().Format(dateLayout))
	}
	return v
}

// Record is one harvested OAI-PMH record.
type Record struct {
	Identifier string
	Datestamp  time.Time
	Deleted    bool

	// Fields maps metadata element local names (title, creator, identifier,
	// ...) to their values in document order.
	Fields map[string][]string

	// Raw is the record XML as served by the feed.
	Raw string
}

// Field returns the first value of a metadata element, or "".
func (r Record) Field(name string) string {
	if values := r.Fields[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Page is one ListRecords response.
type Page struct {
	Records []Record

	// ResumptionToken continues the list; empty on the last page.
	ResumptionToken string
}

// Client speaks the OAI-PMH ListRecords verb to one endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	retryDelay time.Duration
	maxRetries int
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientHTTPClient sets the HTTP client used for page requests.
func WithClientHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithClientRetry sets the 503 retry delay and bound.
func WithClientRetry(delay time.Duration, maxRetries int) ClientOption {
	return func(c *Client) {
		c.retryDelay = delay
		c.maxRetries = maxRetries
	}
}

// WithClientUserAgent sets the User-Agent header.
func WithClientUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		userAgent:  DefaultUserAgent,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// ListRecords requests the first page.
func (c *Client) ListRecords(ctx context.Context, params ListParams) (*Page, error) {
	return c.fetch(ctx, params.values())
}

// Resume requests the page identified by a resumption token.
func (c *Client) Resume(ctx context.Context, token string) (*Page, error) {
	v := url.Values{}
	v.Set("verb", "ListRecords")
	v.Set("resumptionToken", token)
	return c.fetch(ctx, v)
}

// fetch requests a page, retrying the same request while the feed
// answers 503.
func (c *Client) fetch(ctx context.Context, params url.Values) (*Page, error) {
	target := c.endpoint + "?" + params.Encode()

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, status, err := c.get(ctx, target)
		if err != nil {
			return nil, err
		}
		if status == http.StatusServiceUnavailable {
			c.logger.Info("feed answered 503, retrying",
				"url", c.endpoint,
				"attempt", attempt,
				"delay", c.retryDelay,
			)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
			continue
		}
		if status < 200 || status > 299 {
			return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, status)
		}
		return parsePage(body)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrServiceUnavailable, c.endpoint, c.maxRetries)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/xml, application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read page: %w", err)
	}
	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type oaiResponse struct {
	XMLName     xml.Name        `xml:"OAI-PMH"`
	Error       *oaiError       `xml:"error"`
	ListRecords *oaiListRecords `xml:"ListRecords"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type oaiListRecords struct {
	Records         []oaiRecord `xml:"record"`
	ResumptionToken string      `xml:"resumptionToken"`
}

type oaiRecord struct {
	Header   oaiHeader   `xml:"header"`
	Metadata oaiMetadata `xml:"metadata"`
	Raw      string      `xml:",innerxml"`
}

type oaiHeader struct {
	Status     string `xml:"status,attr"`
	Identifier string `xml:"identifier"`
	Datestamp  string `xml:"datestamp"`
}

// oaiMetadata flattens any metadata schema into leaf elements keyed by
// local name, so oai_dc and base_dc share one decoder.
type oaiMetadata struct {
	fields map[string][]string
}

// UnmarshalXML implements xml.Unmarshaler.
func (m *oaiMetadata) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	m.fields = make(map[string][]string)

	type frame struct {
		name     string
		text     strings.Builder
		hasChild bool
	}
	var stack []*frame

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				stack[len(stack)-1].hasChild = true
			}
			stack = append(stack, &frame{name: t.Name.Local})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				// End of the metadata element itself.
				return nil
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.hasChild {
				continue
			}
			if value := strings.TrimSpace(top.text.String()); value != "" {
				m.fields[top.name] = append(m.fields[top.name], value)
			}
		}
	}
}

// noRecordsMatch is the OAI-PMH error code for an empty result set.
const noRecordsMatch = "noRecordsMatch"

func parsePage(body []byte) (*Page, error) {
	var resp oaiResponse
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.Error != nil {
		if resp.Error.Code == noRecordsMatch {
			return &Page{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrOAI, resp.Error.Code, strings.TrimSpace(resp.Error.Message))
	}
	if resp.ListRecords == nil {
		return nil, fmt.Errorf("%w: no ListRecords element", ErrMalformedResponse)
	}

	page := &Page{
		ResumptionToken: strings.TrimSpace(resp.ListRecords.ResumptionToken),
		Records:         make([]Record, 0, len(resp.ListRecords.Records)),
	}
	for _, r := range resp.ListRecords.Records {
		page.Records = append(page.Records, Record{
			Identifier: strings.TrimSpace(r.Header.Identifier),
			Datestamp:  parseDatestamp(r.Header.Datestamp),
			Deleted:    r.Header.Status == "deleted",
			Fields:     r.Metadata.fields,
			Raw:        strings.TrimSpace(r.Raw),
		})
	}
	return page, nil
}

var datestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05Z", dateLayout}

func parseDatestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range datestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
