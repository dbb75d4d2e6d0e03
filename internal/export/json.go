package export

import (
	"encoding/json"
	"io"

	"github.com/nao1215/wavecrawl/internal/model"
)

// JSONWriter outputs results in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is embedded in the output when not empty.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the wavecrawl version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONPage is the JSON form of a page.
type JSONPage struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Classification string `json:"classification"`
	Hash           string `json:"hash,omitempty"`
}

// JSONReport wraps the result with its pages, which CrawlResult does not
// serialize itself.
type JSONReport struct {
	// Version is the wavecrawl version that produced the report.
	Version string `json:"version,omitempty"`

	// Result is the crawl summary and URL sets.
	Result *model.CrawlResult `json:"result"`

	// Targets and Others are the classified pages, sorted by URL.
	Targets []JSONPage `json:"targets"`
	Others  []JSONPage `json:"others"`
}

// NewJSONReport builds the JSON form of result.
func NewJSONReport(result *model.CrawlResult, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Result:  result,
		Targets: jsonPages(result.Targets()),
		Others:  jsonPages(result.Others()),
	}
}

func jsonPages(pages []*model.Page) []JSONPage {
	out := make([]JSONPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, JSONPage{
			URL:            p.URL(),
			Title:          p.Title(),
			Classification: p.Classification(),
			Hash:           p.Hash(),
		})
	}
	return out
}

// Write outputs the full result in JSON format.
func (w *JSONWriter) Write(result *model.CrawlResult) (int, error) {
	return w.writeJSON(NewJSONReport(result, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
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

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
