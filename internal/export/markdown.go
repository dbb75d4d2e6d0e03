package export

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/wavecrawl/internal/model"
)

// MarkdownWriter outputs results in Markdown format for documentation
// and sharing.
type MarkdownWriter struct {
	baseWriter

	includeOthers bool
}

// MarkdownOption configures a MarkdownWriter.
type MarkdownOption func(*MarkdownWriter)

// WithMarkdownOthers adds a table of the non-target pages.
func WithMarkdownOthers(include bool) MarkdownOption {
	return func(w *MarkdownWriter) {
		w.includeOthers = include
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeSummary(md, result)
	w.writePages(md, "Target Pages", result.Targets())
	if w.includeOthers {
		w.writePages(md, "Other Pages", result.Others())
	}
	w.writeInvalid(md, result)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.CrawlResult) {
	md.H1("Crawl Report: " + result.Domain)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + result.Seed + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration().Round(time.Millisecond).String()},
			{"Waves", strconv.Itoa(result.Waves)},
			{"Status", statusText(result)},
		},
	})
	md.PlainText("")
}

// writeSummary writes page counts, a pie chart and a status alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Pages", "Count"},
		Rows: [][]string{
			{label(model.ClassTarget), strconv.Itoa(len(result.TargetPages))},
			{label(model.ClassOther), strconv.Itoa(len(result.OtherPages))},
			{"Invalid", strconv.Itoa(len(result.Invalid))},
			{"Timeouts", strconv.Itoa(result.Timeouts)},
			{"**Visited**", "**" + strconv.Itoa(len(result.Visited)) + "**"},
		},
	})
	md.PlainText("")

	if len(result.Visited)+len(result.Invalid) > 0 {
		w.writePieChart(md, result)
	}

	switch result.StopReason {
	case model.StopCancelled:
		md.Warningf("The crawl was interrupted after %d visits; results are partial.", len(result.Visited))
	case model.StopVisitLimit:
		md.Importantf("The visit limit was reached; %d pages were visited.", len(result.Visited))
	case model.StopFailed:
		md.Cautionf("The crawl failed: %s", result.Error)
	default:
		md.Tip("Every reachable page of the domain was visited.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the page classes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, result *model.CrawlResult) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Classification"),
		piechart.WithShowData(true),
	)

	if n := len(result.TargetPages); n > 0 {
		chart.LabelAndIntValue(label(model.ClassTarget), uint64(n))
	}
	if n := len(result.OtherPages); n > 0 {
		chart.LabelAndIntValue(label(model.ClassOther), uint64(n))
	}
	if n := len(result.Invalid); n > 0 {
		chart.LabelAndIntValue("Invalid", uint64(n))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writePages writes a table of pages.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, heading string, pages []*model.Page) {
	md.H2(heading)
	md.PlainText("")

	if len(pages) == 0 {
		md.PlainText("None.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(pages))
	for i, p := range pages {
		title := p.Title()
		if title == "" {
			title = "-"
		}
		rows[i] = []string{truncateString(title, 60), p.URL()}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Title", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeInvalid lists the URLs that could not be resolved.
func (w *MarkdownWriter) writeInvalid(md *markdown.Markdown, result *model.CrawlResult) {
	if len(result.Invalid) == 0 {
		return
	}
	md.H2("Invalid URLs")
	md.PlainText("")
	md.BulletList(result.Invalid...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [wavecrawl](https://github.com/nao1215/wavecrawl)*")
}
