// Package export writes crawl results.
//
// This package contains writers for different output formats:
//   - CSVWriter: one row per page, rendered by a Projection
//   - JSONWriter: the full result for tool integration
//   - MarkdownWriter: a shareable report with tables and a chart
//   - SimpleWriter: a human-readable summary for the terminal
//
// Writers implement the Writer interface, so they can be used
// interchangeably and combined with MultiWriter. ReadCSV parses the CSV
// format back into records.
package export
