package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/oadoi/internal/model"
)

const (
	// DefaultFeedURL is the BASE aggregator feed.
	DefaultFeedURL = "http://oai.base-search.net/oai"

	// DefaultChunkSize is the number of accepted records per commit.
	DefaultChunkSize = 100

	// TodayDays is the window harvested by the "today" shortcut.
	TodayDays = 2

	// Metadata schema tags.
	PrefixBaseDC = "base_dc"
	PrefixOAIDC  = "oai_dc"
)

// State is a step of the per-feed harvest state machine.
type State int

const (
	StateIdle State = iota
	StateListing
	StateParsing
	StateFiltering
	StateBuffering
	StateCommitting
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListing:
		return "LISTING"
	case StateParsing:
		return "PARSING"
	case StateFiltering:
		return "FILTERING"
	case StateBuffering:
		return "BUFFERING"
	case StateCommitting:
		return "COMMITTING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Store persists harvested records and feed checkpoints.
type Store interface {
	UpsertRecords(ctx context.Context, records []model.RepositoryRecord) error
	GetFeedSource(ctx context.Context, url string) (*model.FeedSource, error)
	SaveFeedSource(ctx context.Context, feed model.FeedSource) error
}

// Job describes one harvest run.
type Job struct {
	// FeedURL is the OAI-PMH endpoint. Empty means DefaultFeedURL.
	FeedURL string

	// MetadataPrefix is the schema tag. Empty picks base_dc for the
	// default feed and oai_dc otherwise.
	MetadataPrefix string

	// RepositoryID labels records that name no collection. Empty uses the
	// feed host.
	RepositoryID string

	// From and Until bound record datestamps. A zero From resumes from the
	// feed checkpoint.
	From  time.Time
	Until time.Time

	// LastDays, when positive, harvests the last N days up to today and
	// overrides From and Until.
	LastDays int

	// ChunkSize is the commit batch size.
	ChunkSize int

	// UseProxy routes requests through the fixed egress proxy even when
	// NeedsProxy does not match the feed.
	UseProxy bool
}

func (j Job) withDefaults(now time.Time) Job {
	if j.FeedURL == "" {
		j.FeedURL = DefaultFeedURL
	}
	if j.MetadataPrefix == "" {
		j.MetadataPrefix = PrefixOAIDC
		if j.FeedURL == DefaultFeedURL {
			j.MetadataPrefix = PrefixBaseDC
		}
	}
	if j.RepositoryID == "" {
		if u, err := url.Parse(j.FeedURL); err == nil && u.Host != "" {
			j.RepositoryID = u.Host
		} else {
			j.RepositoryID = j.FeedURL
		}
	}
	if j.ChunkSize <= 0 {
		j.ChunkSize = DefaultChunkSize
	}
	if j.LastDays > 0 {
		today := now.UTC().Truncate(24 * time.Hour)
		j.Until = today
		j.From = today.AddDate(0, 0, -j.LastDays)
	}
	return j
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID   uuid.UUID `json:"run_id"`
	FeedURL string    `json:"feed_url"`
	From    time.Time `json:"from,omitzero"`
	Until   time.Time `json:"until,omitzero"`

	Pages    int `json:"pages"`
	Seen     int `json:"seen"`
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`

	// Flushes holds the size of every commit in order.
	Flushes []int `json:"flushes"`

	// Checkpoint is where the next run resumes. It only advances when the
	// stream was consumed to the end.
	Checkpoint time.Time `json:"checkpoint,omitzero"`

	// Exhausted is set when a transport fault ended the run early.
	Exhausted bool   `json:"exhausted"`
	Fault     string `json:"fault,omitempty"`
	Canceled  bool   `json:"canceled"`

	State    State     `json:"-"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Harvester runs the OAI-PMH ingestion loop for one feed at a time.
type Harvester struct {
	store      Store
	httpClient *http.Client
	proxyURL   string
	lockDir    string
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int
	userAgent  string
	now        func() time.Time
	onState    func(State)
	logger     *slog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithHTTPClient sets the HTTP client for every feed and disables the
// proxy selection.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Harvester) {
		h.httpClient = client
	}
}

// WithProxyURL sets the fixed egress proxy.
func WithProxyURL(proxyURL string) Option {
	return func(h *Harvester) {
		h.proxyURL = proxyURL
	}
}

// WithLockDir enables per-feed locking with lock files in dir.
func WithLockDir(dir string) Option {
	return func(h *Harvester) {
		h.lockDir = dir
	}
}

// WithRequestTimeout bounds one page request. It has no effect together
// with WithHTTPClient.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Harvester) {
		h.timeout = d
	}
}

// WithRetry sets the 503 retry delay and bound.
func WithRetry(delay time.Duration, maxRetries int) Option {
	return func(h *Harvester) {
		h.retryDelay = delay
		h.maxRetries = maxRetries
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *Harvester) {
		h.userAgent = ua
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		h.now = now
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(h *Harvester) {
		h.onState = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harvester) {
		h.logger = logger
	}
}

// New creates a Harvester that stores records in store.
func New(store Store, opts ...Option) *Harvester {
	h := &Harvester{
		store:      store,
		timeout:    DefaultRequestTimeout,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		userAgent:  DefaultUserAgent,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run harvests one feed. Transport faults and cancellation end the run
// without an error; the summary tells them apart. Errors are returned only
// when the run cannot start or a commit fails.
func (h *Harvester) Run(ctx context.Context, job Job) (*Summary, error) {
	if h.store == nil {
		return nil, ErrNoSink
	}
	job = job.withDefaults(h.now())

	if h.lockDir != "" {
		lock := NewLock(h.lockDir, job.FeedURL)
		if err := lock.TryLock(); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				h.logger.Warn("failed to release feed lock", "path", lock.Path(), "error", err)
			}
		}()
	}

	feed, err := h.store.GetFeedSource(ctx, job.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed source: %w", err)
	}
	if feed == nil {
		feed = &model.FeedSource{URL: job.FeedURL}
	}
	if job.From.IsZero() && job.LastDays <= 0 {
		job.From = feed.LastHarvestedThrough
	}

	client, err := h.client(job)
	if err != nil {
		return nil, err
	}

	r := &run{
		h:      h,
		job:    job,
		feed:   *feed,
		client: client,
		index:  make(map[string]int),
		summary: &Summary{
			RunID:      uuid.New(),
			FeedURL:    job.FeedURL,
			From:       job.From,
			Until:      job.Until,
			Flushes:    []int{},
			Checkpoint: feed.LastHarvestedThrough,
			Started:    h.now(),
		},
		logger: h.logger.With("feed", job.FeedURL),
	}
	r.feed.LastHarvestStarted = r.summary.Started
	if err := h.store.SaveFeedSource(ctx, r.feed); err != nil {
		return nil, fmt.Errorf("failed to save feed source: %w", err)
	}

	err = r.loop(ctx)
	r.summary.Finished = h.now()
	if err != nil {
		r.transition(StateFailed)
		return r.summary, err
	}

	r.feed.LastHarvestFinished = r.summary.Finished
	if !r.summary.Exhausted && !r.summary.Canceled {
		r.advance()
	}
	if err := h.store.SaveFeedSource(context.WithoutCancel(ctx), r.feed); err != nil {
		r.logger.Warn("failed to save feed source", "error", err)
	}
	r.transition(StateDone)
	r.logger.Info("harvest finished",
		"run_id", r.summary.RunID,
		"pages", r.summary.Pages,
		"accepted", r.summary.Accepted,
		"skipped", r.summary.Skipped,
		"exhausted", r.summary.Exhausted,
		"canceled", r.summary.Canceled,
	)
	return r.summary, nil
}

func (h *Harvester) client(job Job) (*Client, error) {
	httpClient := h.httpClient
	if httpClient == nil {
		proxyURL := ""
		if job.UseProxy || NeedsProxy(job.FeedURL) {
			proxyURL = h.proxyURL
			if proxyURL == "" {
				h.logger.Warn("feed expects a fixed egress proxy but none is configured",
					"feed", job.FeedURL, "env", ProxyEnv)
			}
		}
		var err error
		httpClient, err = NewHTTPClient(proxyURL, h.timeout)
		if err != nil {
			return nil, err
		}
		h.logger.Info("connecting to feed", "feed", job.FeedURL, "proxy", proxyURL)
	}
	return NewClient(job.FeedURL,
		WithClientHTTPClient(httpClient),
		WithClientRetry(h.retryDelay, h.maxRetries),
		WithClientUserAgent(h.userAgent),
		WithClientLogger(h.logger),
	), nil
}

// run holds the mutable state of one harvest.
type run struct {
	h       *Harvester
	job     Job
	feed    model.FeedSource
	client  *Client
	state   State
	buffer  []model.RepositoryRecord
	index   map[string]int
	summary *Summary
	logger  *slog.Logger
}

func (r *run) transition(s State) {
	r.state = s
	r.summary.State = s
	if r.h.onState != nil {
		r.h.onState(s)
	}
}

func (r *run) loop(ctx context.Context) error {
	r.transition(StateListing)
	r.logger.Info("listing records",
		"metadata_prefix", r.job.MetadataPrefix,
		"from", r.job.From,
		"until", r.job.Until,
	)
	page, err := r.client.ListRecords(ctx, ListParams{
		MetadataPrefix: r.job.MetadataPrefix,
		From:           r.job.From,
		Until:          r.job.Until,
	})

	for {
		if err != nil {
			r.fault(ctx, err)
			break
		}
		r.summary.Pages++

		if err := r.consume(ctx, page); err != nil {
			return err
		}

		if page.ResumptionToken == "" {
			break
		}
		if ctx.Err() != nil {
			r.summary.Canceled = true
			r.logger.Info("harvest canceled at page boundary", "pages", r.summary.Pages)
			break
		}
		page, err = r.client.Resume(ctx, page.ResumptionToken)
	}

	// The remainder is committed even after a cancellation.
	return r.flush(context.WithoutCancel(ctx))
}

// fault ends the stream. Cancellation is clean; anything else marks the
// run exhausted so the next run resumes from the checkpoint.
func (r *run) fault(ctx context.Context, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		r.summary.Canceled = true
		r.logger.Info("harvest canceled", "pages", r.summary.Pages)
		return
	}
	r.transition(StateFailed)
	r.summary.Exhausted = true
	r.summary.Fault = err.Error()
	r.logger.Warn("feed fault, treating stream as exhausted",
		"pages", r.summary.Pages,
		"error", err,
	)
}

func (r *run) consume(ctx context.Context, page *Page) error {
	r.transition(StateParsing)
	for _, raw := range page.Records {
		r.summary.Seen++
		if raw.Deleted {
			r.summary.Deleted++
			continue
		}

		r.transition(StateFiltering)
		rec := ToRepositoryRecord(raw, r.job.FeedURL, r.job.RepositoryID)
		if err := Validate(rec); err != nil {
			r.summary.Skipped++
			r.logger.Debug("skipping record", "reason", err)
			continue
		}

		r.transition(StateBuffering)
		r.summary.Accepted++
		if i, ok := r.index[rec.ID]; ok {
			r.buffer[i] = rec
		} else {
			r.index[rec.ID] = len(r.buffer)
			r.buffer = append(r.buffer, rec)
		}

		if len(r.buffer) >= r.job.ChunkSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// advance moves the checkpoint to the end of the harvested window: Until,
// or the start of the run when the window is open. It runs only after the
// whole stream was consumed, since feeds do not list records in datestamp
// order. The checkpoint never moves back.
func (r *run) advance() {
	through := r.job.Until
	if through.IsZero() {
		through = r.summary.Started
	}
	if through.After(r.feed.LastHarvestedThrough) {
		r.feed.LastHarvestedThrough = through
	}
	r.summary.Checkpoint = r.feed.LastHarvestedThrough
}

// flush commits the buffer. Records are upserted by id, so repeating a
// flush is harmless.
func (r *run) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	r.transition(StateCommitting)

	if err := r.h.store.UpsertRecords(ctx, r.buffer); err != nil {
		return fmt.Errorf("failed to commit %d records: %w", len(r.buffer), err)
	}

	r.summary.Flushes = append(r.summary.Flushes, len(r.buffer))
	r.logger.Info("committed records",
		"count", len(r.buffer),
		"last_record", r.buffer[len(r.buffer)-1].ID,
	)

	r.buffer = nil
	clear(r.index)
	return nil
}
