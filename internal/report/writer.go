package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// Writer defines the interface for report output. Each method returns the
// number of bytes written.
type Writer interface {
	// WriteResponses outputs the canonical responses of resolved works.
	WriteResponses(responses []*model.Response) (int, error)

	// WriteBatch outputs the per-unit results of a batch run.
	WriteBatch(report *pipeline.BatchReport) (int, error)

	// WriteHarvest outputs the summary of one harvest run.
	WriteHarvest(summary *harvest.Summary) (int, error)

	// WriteFeeds outputs the known feeds and their checkpoints.
	WriteFeeds(feeds []model.FeedSource) (int, error)
}

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// New returns the Writer for format.
func New(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatTable, "":
		return NewTableWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatCSV:
		return NewCSVWriter(output), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// MultiWriter writes to multiple Writers in order and stops at the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) each(fn func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := fn(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteResponses writes the responses to all Writers.
func (m *MultiWriter) WriteResponses(responses []*model.Response) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteResponses(responses) })
}

// WriteBatch writes the batch report to all Writers.
func (m *MultiWriter) WriteBatch(report *pipeline.BatchReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteBatch(report) })
}

// WriteHarvest writes the harvest summary to all Writers.
func (m *MultiWriter) WriteHarvest(summary *harvest.Summary) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteHarvest(summary) })
}

// WriteFeeds writes the feed listing to all Writers.
func (m *MultiWriter) WriteFeeds(feeds []model.FeedSource) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteFeeds(feeds) })
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

func (b baseWriter) writeString(s string) (int, error) {
	return io.WriteString(b.output, s)
}

const timeLayout = "2006-01-02 15:04:05 MST"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// harvestOutcome labels how a harvest run ended.
func harvestOutcome(s *harvest.Summary) string {
	switch {
	case s.Canceled:
		return "canceled"
	case s.Exhausted:
		return "exhausted: " + s.Fault
	}
	return strings.ToLower(s.State.String())
}
