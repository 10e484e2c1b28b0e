package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// CSVWriter outputs reports as comma-separated rows with a header line.
// Responses use the flat projection for spreadsheet exports.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// countingWriter records how many bytes pass through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func (w *CSVWriter) write(header []string, rows [][]string) (int, error) {
	cw := &countingWriter{w: w.output}
	out := csv.NewWriter(cw)
	if err := out.Write(header); err != nil {
		return cw.n, err
	}
	if err := out.WriteAll(rows); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// WriteResponses outputs one flat row per response.
func (w *CSVWriter) WriteResponses(responses []*model.Response) (int, error) {
	rows := make([][]string, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			rows = append(rows, r.Flat().Values())
		}
	}
	return w.write(model.FlatRowHeader, rows)
}

// WriteBatch outputs one row per unit. Durations are in milliseconds.
func (w *CSVWriter) WriteBatch(report *pipeline.BatchReport) (int, error) {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		rows = append(rows, []string{
			report.RunID,
			res.ID,
			strconv.FormatBool(res.OK()),
			res.Error,
			strconv.FormatInt(res.Duration.Milliseconds(), 10),
		})
	}
	return w.write([]string{"run_id", "id", "ok", "error", "duration_ms"}, rows)
}

// WriteHarvest outputs the summary as key/value rows.
func (w *CSVWriter) WriteHarvest(summary *harvest.Summary) (int, error) {
	return w.write([]string{"property", "value"}, harvestRows(summary))
}

// WriteFeeds outputs the feed listing.
func (w *CSVWriter) WriteFeeds(feeds []model.FeedSource) (int, error) {
	return w.write([]string{"url", "last_harvest_started", "last_harvest_finished", "last_harvested_through"}, feedRows(feeds))
}
