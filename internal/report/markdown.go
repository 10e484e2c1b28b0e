package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
	"github.com/nao1215/oadoi/internal/pipeline"
)

// MarkdownWriter outputs reports in Markdown format for sharing in issues
// and pull requests.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// colorOrder is the display order of OA colors, best first.
var colorOrder = []model.OAColor{
	model.ColorGold,
	model.ColorDiamond,
	model.ColorHybrid,
	model.ColorBronze,
	model.ColorGreen,
	model.ColorClosed,
}

// responseColor is the color of the best location, or closed.
func responseColor(r *model.Response) model.OAColor {
	if r == nil || r.BestOALocation == nil || r.BestOALocation.OAColor == "" {
		return model.ColorClosed
	}
	return model.OAColor(r.BestOALocation.OAColor)
}

// WriteResponses outputs an OA summary and one section per work.
func (w *MarkdownWriter) WriteResponses(responses []*model.Response) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Open Access Report")
	md.PlainText("")

	counts := make(map[model.OAColor]int)
	open := 0
	for _, r := range responses {
		counts[responseColor(r)]++
		if r != nil && r.IsOA {
			open++
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Works", strconv.Itoa(len(responses))},
			{"Open", strconv.Itoa(open)},
			{"Closed", strconv.Itoa(len(responses) - open)},
		},
	})
	md.PlainText("")

	if len(responses) > 0 {
		w.writeColorChart(md, counts)
	}
	w.writeResponseAlert(md, len(responses), open)

	for _, r := range responses {
		if r != nil {
			w.writeResponse(md, r)
		}
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeColorChart writes a mermaid pie chart of the OA color distribution.
func (w *MarkdownWriter) writeColorChart(md *markdown.Markdown, counts map[model.OAColor]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("OA Color Distribution"),
		piechart.WithShowData(true),
	)
	for _, c := range colorOrder {
		if n := counts[c]; n > 0 {
			chart.LabelAndIntValue(string(c), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeResponseAlert(md *markdown.Markdown, total, open int) {
	switch {
	case total == 0:
		md.Note("No works were resolved.")
	case open == total:
		md.Tip("Every work has an open copy.")
	case open == 0:
		md.Importantf("None of the %d work(s) has an open copy.", total)
	default:
		md.Note(strconv.Itoa(open) + " of " + strconv.Itoa(total) + " work(s) have an open copy.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeResponse(md *markdown.Markdown, r *model.Response) {
	md.H2(dash(r.DOI))
	md.PlainText("")

	year := "-"
	if r.Year != nil {
		year = strconv.Itoa(*r.Year)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Title", dash(r.Title)},
			{"Journal", dash(r.JournalName)},
			{"Publisher", dash(r.Publisher)},
			{"Year", year},
			{"Genre", dash(r.Genre)},
			{"Status", statusText(r)},
			{"Data standard", strconv.Itoa(r.DataStandard)},
			{"Updated", dash(r.Updated)},
		},
	})
	md.PlainText("")

	if r.Error != "" {
		md.Warningf("Resolution reported: %s", r.Error)
		md.PlainText("")
	}

	if len(r.OALocations) > 0 {
		rows := make([][]string, len(r.OALocations))
		for i, l := range r.OALocations {
			best := ""
			if l.IsBest {
				best = "✅"
			}
			rows[i] = []string{
				best,
				truncateString(l.URL, 60),
				dash(l.HostType),
				dash(l.Version),
				dash(l.License),
				dash(l.Evidence),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Best", "URL", "Host", "Version", "License", "Evidence"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(r.ReportedNoncompliantCopies) > 0 {
		md.Details("Reported noncompliant copies", strings.Join(r.ReportedNoncompliantCopies, "\n"))
		md.PlainText("")
	}
}

func statusText(r *model.Response) string {
	if r.IsOA {
		return "🔓 Open (" + string(responseColor(r)) + ")"
	}
	return "🔒 Closed"
}

// WriteBatch outputs the per-unit results of a batch run.
func (w *MarkdownWriter) WriteBatch(report *pipeline.BatchReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Batch Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + report.RunID + "`"},
			{"Started", formatTime(report.Started)},
			{"Finished", formatTime(report.Finished)},
			{"Succeeded", strconv.Itoa(report.Succeeded())},
			{"Failed", strconv.Itoa(len(report.Failed()))},
		},
	})
	md.PlainText("")

	if failed := len(report.Failed()); failed > 0 {
		md.Warningf("%d unit(s) failed.", failed)
	} else {
		md.Tip("All units succeeded.")
	}
	md.PlainText("")

	if len(report.Results) > 0 {
		rows := make([][]string, len(report.Results))
		for i, res := range report.Results {
			status := "✅"
			if !res.OK() {
				status = "❌"
			}
			rows[i] = []string{
				"`" + res.ID + "`",
				status,
				truncateString(dash(res.Error), 60),
				res.Duration.String(),
			}
		}
		md.H2("Units")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"ID", "Status", "Error", "Duration"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteHarvest outputs the harvest summary.
func (w *MarkdownWriter) WriteHarvest(summary *harvest.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Harvest Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   harvestRows(summary),
	})
	md.PlainText("")

	switch {
	case summary.Canceled:
		md.Importantf("Harvest was canceled; records through %s are committed.", formatTime(summary.Checkpoint))
	case summary.Exhausted:
		md.Cautionf("Feed failed: %s", summary.Fault)
	default:
		md.Tip("Harvest completed.")
	}
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// harvestRows returns the key/value rows shared by the harvest writers.
func harvestRows(s *harvest.Summary) [][]string {
	flushes := make([]string, len(s.Flushes))
	for i, n := range s.Flushes {
		flushes[i] = strconv.Itoa(n)
	}
	return [][]string{
		{"Run", s.RunID.String()},
		{"Feed", s.FeedURL},
		{"From", formatTime(s.From)},
		{"Until", formatTime(s.Until)},
		{"Pages", strconv.Itoa(s.Pages)},
		{"Seen", strconv.Itoa(s.Seen)},
		{"Accepted", strconv.Itoa(s.Accepted)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Deleted", strconv.Itoa(s.Deleted)},
		{"Flushes", dash(strings.Join(flushes, ","))},
		{"Checkpoint", formatTime(s.Checkpoint)},
		{"Outcome", harvestOutcome(s)},
		{"Started", formatTime(s.Started)},
		{"Finished", formatTime(s.Finished)},
	}
}

// WriteFeeds outputs the feed listing.
func (w *MarkdownWriter) WriteFeeds(feeds []model.FeedSource) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Feeds")
	md.PlainText("")
	if len(feeds) == 0 {
		md.PlainText("No feeds have been harvested.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	md.Table(markdown.TableSet{
		Header: feedHeader,
		Rows:   feedRows(feeds),
	})
	md.PlainText("")
	return len(md.String()), md.Build()
}

var feedHeader = []string{"URL", "Last Started", "Last Finished", "Harvested Through"}

func feedRows(feeds []model.FeedSource) [][]string {
	rows := make([][]string, len(feeds))
	for i, f := range feeds {
		rows[i] = []string{
			f.URL,
			formatTime(f.LastHarvestStarted),
			formatTime(f.LastHarvestFinished),
			formatTime(f.LastHarvestedThrough),
		}
	}
	return rows
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [oadoi](https://github.com/nao1215/oadoi)*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
