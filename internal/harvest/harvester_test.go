package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/oadoi/internal/database"
	"github.com/nao1215/oadoi/internal/model"
)

// memoryStore is an in-memory Store that records every flush.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]model.RepositoryRecord
	feeds   map[string]model.FeedSource
	flushes []int
	failOn  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: make(map[string]model.RepositoryRecord),
		feeds:   make(map[string]model.FeedSource),
	}
}

func (m *memoryStore) UpsertRecords(_ context.Context, records []model.RepositoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn > 0 && len(m.flushes)+1 == m.failOn {
		return errors.New("disk full")
	}
	m.flushes = append(m.flushes, len(records))
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *memoryStore) GetFeedSource(_ context.Context, url string) (*model.FeedSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed, ok := m.feeds[url]
	if !ok {
		return nil, nil
	}
	return &feed, nil
}

func (m *memoryStore) SaveFeedSource(_ context.Context, feed model.FeedSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds[feed.URL] = feed
	return nil
}

// oaiRecordXML renders one oai_dc record.
func oaiRecordXML(id int, datestamp string) string {
	return fmt.Sprintf(`<record><header><identifier>oai:repo:%d</identifier><datestamp>%s</datestamp></header>
<metadata><oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>A Study of Thing Number %d</dc:title>
<dc:creator>Smith, Jane</dc:creator>
<dc:identifier>https://repo.example/%d</dc:identifier>
<dc:identifier>https://doi.org/10.1234/thing.%d</dc:identifier>
</oai_dc:dc></metadata></record>`, id, datestamp, id, id, id)
}

func pageXML(records []string, token string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><responseDate>2024-01-01T00:00:00Z</responseDate><ListRecords>`)
	for _, r := range records {
		b.WriteString(r)
	}
	if token != "" {
		fmt.Fprintf(&b, `<resumptionToken cursor="0">%s</resumptionToken>`, token)
	} else {
		b.WriteString(`<resumptionToken/>`)
	}
	b.WriteString(`</ListRecords></OAI-PMH>`)
	return b.String()
}

// feedServer serves total records split into pages of pageSize, keyed by
// resumption tokens "p1", "p2", ....
func feedServer(t *testing.T, total, pageSize int, extra []string) *httptest.Server {
	t.Helper()

	var pages [][]string
	var current []string
	for i := 1; i <= total; i++ {
		day := 1 + i%28
		current = append(current, oaiRecordXML(i, fmt.Sprintf("2024-02-%02dT00:00:00Z", day)))
		if len(current) == pageSize {
			pages = append(pages, current)
			current = nil
		}
	}
	if len(current) > 0 {
		pages = append(pages, current)
	}
	if len(pages) == 0 {
		pages = append(pages, nil)
	}
	pages[0] = append(pages[0], extra...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("verb"); got != "ListRecords" {
			t.Errorf("verb = %q", got)
		}
		idx := 0
		if token := r.URL.Query().Get("resumptionToken"); token != "" {
			if _, err := fmt.Sscanf(token, "p%d", &idx); err != nil {
				http.Error(w, "bad token", http.StatusBadRequest)
				return
			}
		}
		next := ""
		if idx+1 < len(pages) {
			next = fmt.Sprintf("p%d", idx+1)
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(pageXML(pages[idx], next)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClock() time.Time {
	return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestHarvesterRun(t *testing.T) {
	t.Parallel()

	t.Run("flushes every chunk and the remainder", func(t *testing.T) {
		t.Parallel()

		extra := []string{
			`<record><header status="deleted"><identifier>oai:repo:gone</identifier><datestamp>2024-02-01</datestamp></header></record>`,
			`<record><header><identifier>oai:repo:notitle</identifier><datestamp>2024-02-01</datestamp></header><metadata><dc><identifier>https://repo.example/x</identifier></dc></metadata></record>`,
			`<record><header><identifier>oai:repo:closed</identifier><datestamp>2024-02-01</datestamp></header><metadata><dc><title>Closed Thing</title><identifier>https://repo.example/c</identifier><oa>0</oa></dc></metadata></record>`,
		}
		srv := feedServer(t, 250, 90, extra)
		store := newMemoryStore()

		var states []State
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock), WithStateHook(func(s State) {
			states = append(states, s)
		}))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL, ChunkSize: 100})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		if diff := cmp.Diff([]int{100, 100, 50}, store.flushes); diff != "" {
			t.Errorf("flushes mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(store.flushes, summary.Flushes); diff != "" {
			t.Errorf("summary flushes mismatch (-want +got):\n%s", diff)
		}
		if summary.Pages != 3 || summary.Accepted != 250 || summary.Skipped != 2 || summary.Deleted != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if summary.Exhausted || summary.Canceled {
			t.Errorf("unexpected early end: %+v", summary)
		}
		if len(store.records) != 250 {
			t.Errorf("stored %d records, want 250", len(store.records))
		}
		if states[0] != StateListing || states[len(states)-1] != StateDone {
			t.Errorf("states = %v", states)
		}

		rec := store.records["oai:repo:7"]
		if rec.DOI != "10.1234/thing.7" {
			t.Errorf("DOI = %q", rec.DOI)
		}
		if rec.RepositoryID != strings.TrimPrefix(srv.URL, "http://") {
			t.Errorf("RepositoryID = %q", rec.RepositoryID)
		}
		if rec.NormalizedTitle == "" || rec.Raw == "" {
			t.Errorf("record not fully mapped: %+v", rec)
		}

		want := testClock()
		if !summary.Checkpoint.Equal(want) {
			t.Errorf("Checkpoint = %v, want %v", summary.Checkpoint, want)
		}
		feed := store.feeds[srv.URL]
		if !feed.LastHarvestedThrough.Equal(want) || feed.LastHarvestFinished.IsZero() {
			t.Errorf("feed source = %+v", feed)
		}
	})

	t.Run("re-harvesting never duplicates records", func(t *testing.T) {
		t.Parallel()

		srv := feedServer(t, 30, 10, nil)
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		h := New(db, WithHTTPClient(srv.Client()), WithClock(testClock))
		for range 2 {
			if _, err := h.Run(context.Background(), Job{FeedURL: srv.URL, ChunkSize: 7, From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
		}

		count, err := db.CountRecords(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("CountRecords() error: %v", err)
		}
		if count != 30 {
			t.Errorf("CountRecords() = %d, want 30", count)
		}
		byDOI, err := db.RecordsByDOI(context.Background(), "10.1234/thing.3")
		if err != nil || len(byDOI) != 1 {
			t.Errorf("RecordsByDOI() = %v, %v", byDOI, err)
		}
	})

	t.Run("resumes from the checkpoint", func(t *testing.T) {
		t.Parallel()

		var from atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from.Store(r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(pageXML(nil, "")))
		}))
		t.Cleanup(srv.Close)

		store := newMemoryStore()
		store.feeds[srv.URL] = model.FeedSource{
			URL:                  srv.URL,
			LastHarvestedThrough: time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC),
		}
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock))
		if _, err := h.Run(context.Background(), Job{FeedURL: srv.URL}); err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if got := from.Load(); got != "2024-02-03" {
			t.Errorf("from = %v, want 2024-02-03", got)
		}
	})

	t.Run("last days window overrides dates", func(t *testing.T) {
		t.Parallel()

		var query atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query.Store(r.URL.Query().Get("from") + ".." + r.URL.Query().Get("until") + ":" + r.URL.Query().Get("metadataPrefix"))
			_, _ = w.Write([]byte(`<OAI-PMH><error code="noRecordsMatch">nothing</error></OAI-PMH>`))
		}))
		t.Cleanup(srv.Close)

		h := New(newMemoryStore(), WithHTTPClient(srv.Client()), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL, LastDays: TodayDays})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if got := query.Load(); got != "2024-03-08..2024-03-10:oai_dc" {
			t.Errorf("query = %v", got)
		}
		if summary.Exhausted || len(summary.Flushes) != 0 {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("retries 503 on the same page", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(pageXML([]string{oaiRecordXML(1, "2024-02-01")}, "")))
		}))
		t.Cleanup(srv.Close)

		store := newMemoryStore()
		h := New(store, WithHTTPClient(srv.Client()), WithRetry(time.Millisecond, 5), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
		if summary.Exhausted || summary.Accepted != 1 {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("persistent 503 exhausts the run", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		h := New(newMemoryStore(), WithHTTPClient(srv.Client()), WithRetry(time.Millisecond, 2), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Exhausted || !strings.Contains(summary.Fault, ErrServiceUnavailable.Error()) {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("malformed page keeps what was committed", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("resumptionToken") == "" {
				_, _ = w.Write([]byte(pageXML([]string{oaiRecordXML(1, "2024-02-01"), oaiRecordXML(2, "2024-02-02")}, "next")))
				return
			}
			_, _ = w.Write([]byte("<OAI-PMH><ListRecords><record>"))
		}))
		t.Cleanup(srv.Close)

		store := newMemoryStore()
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Exhausted || summary.State != StateDone {
			t.Errorf("summary = %+v", summary)
		}
		if len(store.records) != 2 {
			t.Errorf("stored %d records, want 2", len(store.records))
		}
	})

	t.Run("fault keeps the checkpoint", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("resumptionToken") == "" {
				_, _ = w.Write([]byte(pageXML([]string{oaiRecordXML(1, "2024-02-28T00:00:00Z")}, "p1")))
				return
			}
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Error(err)
				return
			}
			_ = conn.Close()
		}))
		t.Cleanup(srv.Close)

		previous := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		store := newMemoryStore()
		store.feeds[srv.URL] = model.FeedSource{URL: srv.URL, LastHarvestedThrough: previous}

		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Exhausted {
			t.Fatalf("summary = %+v, want exhausted", summary)
		}
		if len(store.records) != 1 {
			t.Errorf("stored %d records, want 1", len(store.records))
		}
		if !summary.Checkpoint.Equal(previous) {
			t.Errorf("Checkpoint = %v, want %v", summary.Checkpoint, previous)
		}
		if got := store.feeds[srv.URL].LastHarvestedThrough; !got.Equal(previous) {
			t.Errorf("stored checkpoint = %v, want %v", got, previous)
		}
	})

	t.Run("complete window moves the checkpoint to its end", func(t *testing.T) {
		t.Parallel()

		srv := feedServer(t, 3, 10, nil)
		until := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)

		store := newMemoryStore()
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{
			FeedURL: srv.URL,
			From:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Until:   until,
		})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Checkpoint.Equal(until) {
			t.Errorf("Checkpoint = %v, want %v", summary.Checkpoint, until)
		}

		// A backfill of an older window leaves a later checkpoint alone.
		later := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		store.feeds[srv.URL] = model.FeedSource{URL: srv.URL, LastHarvestedThrough: later}
		summary, err = h.Run(context.Background(), Job{
			FeedURL: srv.URL,
			From:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Until:   until,
		})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Checkpoint.Equal(later) || !store.feeds[srv.URL].LastHarvestedThrough.Equal(later) {
			t.Errorf("Checkpoint = %v, want %v", summary.Checkpoint, later)
		}
	})

	t.Run("cancellation stops at the page boundary", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := calls.Add(1)
			_, _ = w.Write([]byte(pageXML([]string{oaiRecordXML(int(n), "2024-02-01")}, fmt.Sprintf("p%d", n))))
		}))
		t.Cleanup(srv.Close)

		store := newMemoryStore()
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock), WithStateHook(func(s State) {
			if s == StateBuffering {
				cancel()
			}
		}))
		summary, err := h.Run(ctx, Job{FeedURL: srv.URL})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !summary.Canceled || summary.Exhausted {
			t.Errorf("summary = %+v", summary)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
		if diff := cmp.Diff([]int{1}, store.flushes); diff != "" {
			t.Errorf("remainder not flushed (-want +got):\n%s", diff)
		}
		if !store.feeds[srv.URL].LastHarvestedThrough.IsZero() {
			t.Errorf("canceled run moved the checkpoint to %v", store.feeds[srv.URL].LastHarvestedThrough)
		}
	})

	t.Run("commit failure is returned", func(t *testing.T) {
		t.Parallel()

		srv := feedServer(t, 5, 5, nil)
		store := newMemoryStore()
		store.failOn = 1
		h := New(store, WithHTTPClient(srv.Client()), WithClock(testClock))
		summary, err := h.Run(context.Background(), Job{FeedURL: srv.URL})
		if err == nil {
			t.Fatal("expected commit error")
		}
		if summary == nil || summary.State != StateFailed {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("requires a store", func(t *testing.T) {
		t.Parallel()

		if _, err := New(nil).Run(context.Background(), Job{}); !errors.Is(err, ErrNoSink) {
			t.Errorf("Run() error = %v, want ErrNoSink", err)
		}
	})
}

func TestHarvesterLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv := feedServer(t, 1, 1, nil)

	held := NewLock(dir, srv.URL)
	if err := held.TryLock(); err != nil {
		t.Fatalf("TryLock() error: %v", err)
	}

	h := New(newMemoryStore(), WithHTTPClient(srv.Client()), WithLockDir(dir), WithClock(testClock))
	if _, err := h.Run(context.Background(), Job{FeedURL: srv.URL}); !errors.Is(err, ErrFeedLocked) {
		t.Errorf("Run() error = %v, want ErrFeedLocked", err)
	}

	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}
	if _, err := h.Run(context.Background(), Job{FeedURL: srv.URL}); err != nil {
		t.Errorf("Run() after unlock error: %v", err)
	}
}

func TestJobDefaults(t *testing.T) {
	t.Parallel()

	now := testClock()

	base := Job{}.withDefaults(now)
	if base.FeedURL != DefaultFeedURL || base.MetadataPrefix != PrefixBaseDC || base.ChunkSize != DefaultChunkSize {
		t.Errorf("default job = %+v", base)
	}
	if base.RepositoryID != "oai.base-search.net" {
		t.Errorf("RepositoryID = %q", base.RepositoryID)
	}

	other := Job{FeedURL: "https://export.arxiv.org/oai2", MetadataPrefix: ""}.withDefaults(now)
	if other.MetadataPrefix != PrefixOAIDC {
		t.Errorf("MetadataPrefix = %q", other.MetadataPrefix)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateIdle:       "IDLE",
		StateListing:    "LISTING",
		StateCommitting: "COMMITTING",
		StateFailed:     "FAILED",
		State(99):       "UNKNOWN",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
