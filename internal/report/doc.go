// Package report renders resolution results, batch reports, harvest
// summaries and feed listings.
//
// Four formats implement the Writer interface:
//   - TableWriter: aligned text tables for the terminal (default)
//   - JSONWriter: the canonical response documents, for tool integration
//   - MarkdownWriter: GitHub Flavored Markdown with an OA color chart
//   - CSVWriter: the flat response rows, for spreadsheets
//
// Writers can be combined with MultiWriter.
package report
