package report

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// TableWriter outputs reports as rounded terminal tables. It is the default
// format for interactive use.
type TableWriter struct {
	baseWriter
}

// NewTableWriter creates a TableWriter that outputs to the given writer.
func NewTableWriter(output io.Writer) *TableWriter {
	return &TableWriter{baseWriter: newBaseWriter(output)}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render() + "\n"
}

// WriteResponses outputs one row per work with its best location.
func (w *TableWriter) WriteResponses(responses []*model.Response) (int, error) {
	rows := make([][]string, 0, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		url, host, version := "-", "-", "-"
		if best := r.BestOALocation; best != nil {
			url = truncateString(best.URL, 60)
			host = dash(best.HostType)
			version = dash(best.Version)
		}
		rows = append(rows, []string{
			r.DOI,
			string(responseColor(r)),
			host,
			version,
			url,
			dash(r.Error),
		})
	}
	return w.writeString(renderTable(
		[]string{"DOI", "Color", "Host", "Version", "Best URL", "Error"},
		rows,
		nil,
	))
}

// WriteBatch outputs the per-unit results followed by the totals.
func (w *TableWriter) WriteBatch(report *pipeline.BatchReport) (int, error) {
	rows := make([][]string, 0, len(report.Results)+1)
	for _, res := range report.Results {
		status := "ok"
		if !res.OK() {
			status = "failed"
		}
		rows = append(rows, []string{res.ID, status, dash(res.Error), res.Duration.String()})
	}
	out := renderTable(
		[]string{"ID", "Status", "Error", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
	out += renderTable(
		[]string{"Run", "Succeeded", "Failed"},
		[][]string{{report.RunID, strconv.Itoa(report.Succeeded()), strconv.Itoa(len(report.Failed()))}},
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)
	return w.writeString(out)
}

// WriteHarvest outputs the harvest summary as key/value rows.
func (w *TableWriter) WriteHarvest(summary *harvest.Summary) (int, error) {
	return w.writeString(renderTable([]string{"Property", "Value"}, harvestRows(summary), nil))
}

// WriteFeeds outputs the feed listing.
func (w *TableWriter) WriteFeeds(feeds []model.FeedSource) (int, error) {
	return w.writeString(renderTable(feedHeader, feedRows(feeds), nil))
}
