package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/wavecrawl/internal/model"
)

// SimpleWriter outputs a human-readable summary for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists the non-target pages as well.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result in human-readable format.
func (w *SimpleWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, result)
	w.writeCounts(&sb, result)
	w.writePages(&sb, result.Targets())
	if w.verbose {
		w.writePages(&sb, result.Others())
		w.writeInvalid(&sb, result)
	}
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, result *model.CrawlResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Domain:    %s\n", result.Domain)
	fmt.Fprintf(sb, "Seed:      %s\n", result.Seed)
	fmt.Fprintf(sb, "Started:   %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", result.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:    %s\n", statusText(result))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounts(sb *strings.Builder, result *model.CrawlResult) {
	fmt.Fprintf(sb, "  Waves:    %d\n", result.Waves)
	fmt.Fprintf(sb, "  Visited:  %d\n", len(result.Visited))
	fmt.Fprintf(sb, "  Targets:  %d\n", len(result.TargetPages))
	fmt.Fprintf(sb, "  Others:   %d\n", len(result.OtherPages))
	fmt.Fprintf(sb, "  Invalid:  %d\n", len(result.Invalid))
	fmt.Fprintf(sb, "  Timeouts: %d\n", result.Timeouts)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, pages []*model.Page) {
	for _, p := range pages {
		fmt.Fprintf(sb, "  [%s] %s\n", label(p.Classification()), p.URL())
		if p.Title() != "" {
			fmt.Fprintf(sb, "      %s\n", truncateString(p.Title(), 64))
		}
	}
	if len(pages) > 0 {
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeInvalid(sb *strings.Builder, result *model.CrawlResult) {
	for _, u := range result.Invalid {
		fmt.Fprintf(sb, "  [Invalid] %s\n", u)
	}
	if len(result.Invalid) > 0 {
		sb.WriteString("\n")
	}
}
