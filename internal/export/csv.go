package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nao1215/wavecrawl/internal/model"
)

// ErrMalformedRow is returned by ReadCSV for rows it cannot interpret.
var ErrMalformedRow = errors.New("malformed CSV row")

// Record is the exported form of a page.
type Record struct {
	Classification string
	Title          string
	URL            string
}

// RecordOf returns the record of page.
func RecordOf(page *model.Page) Record {
	return Record{
		Classification: page.Classification(),
		Title:          lineBreaks.Replace(page.Title()),
		URL:            page.URL(),
	}
}

// lineBreaks flattens titles so every page is exactly one physical line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Projection renders a page as the fields of one CSV row.
type Projection func(page *model.Page) []string

// DefaultHeader is the header row written with DefaultProjection.
var DefaultHeader = []string{"classification", "title", "url"}

// DefaultProjection renders classification, title and URL as three columns.
func DefaultProjection(page *model.Page) []string {
	r := RecordOf(page)
	return []string{r.Classification, r.Title, r.URL}
}

// Line labels used by LineProjection.
const (
	lineClassPrefix = "Class: "
	lineTitleSep    = "; Title: "
	lineURLSep      = "; URL: "
)

// LineProjection renders a page as a single column of the form
// "Class: target; Title: <title>; URL: <url>".
func LineProjection(page *model.Page) []string {
	return []string{FormatLine(RecordOf(page))}
}

// FormatLine returns the single-column form of r.
func FormatLine(r Record) string {
	return lineClassPrefix + r.Classification + lineTitleSep + r.Title + lineURLSep + r.URL
}

// ParseLine parses the output of FormatLine.
func ParseLine(line string) (Record, error) {
	rest, ok := strings.CutPrefix(line, lineClassPrefix)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRow, line)
	}
	class, rest, ok := strings.Cut(rest, lineTitleSep)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRow, line)
	}
	// The URL never contains "; URL: ", the title might.
	i := strings.LastIndex(rest, lineURLSep)
	if i < 0 {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRow, line)
	}
	return Record{Classification: class, Title: rest[:i], URL: rest[i+len(lineURLSep):]}, nil
}

// CSVWriter writes one row per page. Target pages come first, each group
// sorted by URL.
type CSVWriter struct {
	baseWriter

	projection    Projection
	header        []string
	includeOthers bool
}

// CSVOption configures a CSVWriter.
type CSVOption func(*CSVWriter)

// WithProjection replaces the row rendering. The header is dropped unless
// WithHeader is also given.
func WithProjection(p Projection) CSVOption {
	return func(w *CSVWriter) {
		if p != nil {
			w.projection = p
			w.header = nil
		}
	}
}

// WithHeader sets the header row; nil disables it.
func WithHeader(header ...string) CSVOption {
	return func(w *CSVWriter) {
		w.header = header
	}
}

// WithOthers includes non-target pages.
func WithOthers(include bool) CSVOption {
	return func(w *CSVWriter) {
		w.includeOthers = include
	}
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer, opts ...CSVOption) *CSVWriter {
	w := &CSVWriter{
		baseWriter: newBaseWriter(output),
		projection: DefaultProjection,
		header:     slices.Clone(DefaultHeader),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the pages of result.
func (w *CSVWriter) Write(result *model.CrawlResult) (int, error) {
	return w.WritePages(result.Pages(w.includeOthers))
}

// WritePages outputs the given pages in order.
func (w *CSVWriter) WritePages(pages []*model.Page) (int, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if len(w.header) > 0 {
		if err := cw.Write(w.header); err != nil {
			return 0, err
		}
	}
	for _, page := range pages {
		if err := cw.Write(w.projection(page)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}

	return w.output.Write(buf.Bytes())
}

// ReadCSV parses CSV written with DefaultProjection or LineProjection.
// A DefaultHeader row is skipped.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records := make([]Record, 0)
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}

		switch len(row) {
		case 3:
			if line == 1 && slices.Equal(row, DefaultHeader) {
				continue
			}
			records = append(records, Record{Classification: row[0], Title: row[1], URL: row[2]})
		case 1:
			rec, err := ParseLine(row[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, rec)
		default:
			return nil, fmt.Errorf("line %d: %w: %d fields", line, ErrMalformedRow, len(row))
		}
	}
}
