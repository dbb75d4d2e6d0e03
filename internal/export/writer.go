package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/wavecrawl/internal/model"
)

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatCSV, FormatJSON, FormatMarkdown}

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// Writer defines the interface for result output.
type Writer interface {
	// Write outputs the result to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.CrawlResult) (int, error)
}

// Options are the settings shared by the writers built with NewWriter.
type Options struct {
	// IncludeOthers adds non-target pages to page listings.
	IncludeOthers bool

	// Version is embedded in JSON output and footers.
	Version string
}

// NewWriter returns the writer for format.
func NewWriter(format Format, output io.Writer, opts Options) (Writer, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatText, "":
		return NewSimpleWriter(output, WithVerbose(opts.IncludeOthers)), nil
	case FormatCSV:
		return NewCSVWriter(output, WithOthers(opts.IncludeOthers)), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(opts.Version)), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output, WithMarkdownOthers(opts.IncludeOthers)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Extension returns the file extension conventionally used for format.
func Extension(format Format) string {
	switch format {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

// AddExtension appends ext to name unless name already ends with it.
func AddExtension(name, ext string) string {
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}

// MultiWriter writes to multiple Writers, e.g. terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.CrawlResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for result writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// label returns the display form of a classification ("Target", "Other").
func label(classification string) string {
	return titleCaser.String(classification)
}

// statusText describes how the crawl ended.
func statusText(result *model.CrawlResult) string {
	switch result.StopReason {
	case model.StopExhausted:
		return "Complete"
	case model.StopVisitLimit:
		return "Visit limit reached"
	case model.StopCancelled:
		return "Interrupted (partial results)"
	case model.StopFailed:
		if result.Error != "" {
			return "Failed - " + result.Error
		}
		return "Failed"
	default:
		return "Unknown"
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
