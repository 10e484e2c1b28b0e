package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// JSONWriter outputs reports in JSON format for tool integration.
// A single response is written as an object, several as an array.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteResponses outputs the responses.
func (w *JSONWriter) WriteResponses(responses []*model.Response) (int, error) {
	if len(responses) == 1 {
		return w.WriteValue(responses[0])
	}
	if responses == nil {
		responses = []*model.Response{}
	}
	return w.WriteValue(responses)
}

// WriteBatch outputs the batch report.
func (w *JSONWriter) WriteBatch(report *pipeline.BatchReport) (int, error) {
	return w.WriteValue(report)
}

// harvestJSON adds the readable state to the summary.
type harvestJSON struct {
	*harvest.Summary
	State string `json:"state"`
}

// WriteHarvest outputs the harvest summary.
func (w *JSONWriter) WriteHarvest(summary *harvest.Summary) (int, error) {
	return w.WriteValue(harvestJSON{Summary: summary, State: summary.State.String()})
}

// feedJSON is the JSON shape of a feed source.
type feedJSON struct {
	URL                  string `json:"url"`
	LastHarvestStarted   string `json:"last_harvest_started,omitempty"`
	LastHarvestFinished  string `json:"last_harvest_finished,omitempty"`
	LastHarvestedThrough string `json:"last_harvested_through,omitempty"`
}

func jsonTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteFeeds outputs the feed listing.
func (w *JSONWriter) WriteFeeds(feeds []model.FeedSource) (int, error) {
	out := make([]feedJSON, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedJSON{
			URL:                  f.URL,
			LastHarvestStarted:   jsonTime(f.LastHarvestStarted),
			LastHarvestFinished:  jsonTime(f.LastHarvestFinished),
			LastHarvestedThrough: jsonTime(f.LastHarvestedThrough),
		})
	}
	return w.WriteValue(out)
}

// WriteValue marshals any value, such as a legacy response, and writes it
// followed by a newline.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
