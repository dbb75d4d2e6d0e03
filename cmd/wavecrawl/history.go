package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/wavecrawl/internal/config"
	"github.com/nao1215/wavecrawl/internal/database"
	"github.com/nao1215/wavecrawl/internal/export"
	"github.com/nao1215/wavecrawl/internal/model"
)

// defaultHistoryLimit is the number of crawls listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command inspects crawl results stored in the results database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Inspect saved crawl results",
		Long: `History shows crawls saved with 'wavecrawl crawl --save'.

Without flags it lists the most recent crawls, optionally for one domain.

Examples:
  # List the most recent crawls of every domain
  wavecrawl history

  # List crawls of one domain
  wavecrawl history shop.example

  # List every crawled domain
  wavecrawl history --domains

  # Export a stored crawl again, as CSV
  wavecrawl history --show <id> --format csv

  # Export the latest crawl of a domain
  wavecrawl history --latest shop.example

  # Show target pages that appeared or vanished between the last two crawls
  wavecrawl history --compare shop.example

  # Delete a stored crawl
  wavecrawl history --delete <id>`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	// Listing flags
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of crawls to list (0 = all)")
	cmd.Flags().BoolP("domains", "L", false,
		"List all crawled domains")

	// Single crawl flags
	cmd.Flags().StringP("show", "i", "",
		"Export the stored crawl with this ID")
	cmd.Flags().Bool("latest", false,
		"Export the latest crawl of the given domain")
	cmd.Flags().Bool("compare", false,
		"Compare the latest two crawls of the given domain")
	cmd.Flags().String("delete", "",
		"Delete the stored crawl with this ID")

	// Output flags
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Output format for --show and --latest: text, csv, json, markdown")
	cmd.Flags().Bool("others", false,
		"Include non-target pages in the output")
	cmd.Flags().BoolP("json", "j", false,
		"Output --compare in JSON format")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the results database")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	domain        string
	limit         int
	listDomains   bool
	showID        string
	latest        bool
	compare       bool
	deleteID      string
	format        string
	includeOthers bool
	jsonOutput    bool
	dbDir         string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate before opening the database so a bad invocation leaves no file behind.
	if (opts.latest || opts.compare) && opts.domain == "" {
		return errors.New("a domain is required for --latest and --compare")
	}
	if !slices.Contains(export.Formats, export.Format(opts.format)) {
		return fmt.Errorf("%w: %s", config.ErrInvalidFormat, opts.format)
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// parseHistoryFlags reads the history flags.
func parseHistoryFlags(cmd *cobra.Command, args []string) (historyOptions, error) {
	var opts historyOptions
	var err error
	flags := cmd.Flags()

	if len(args) > 0 {
		opts.domain = strings.TrimSpace(args[0])
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.listDomains, err = flags.GetBool("domains"); err != nil {
		return opts, err
	}
	if opts.showID, err = flags.GetString("show"); err != nil {
		return opts, err
	}
	if opts.latest, err = flags.GetBool("latest"); err != nil {
		return opts, err
	}
	if opts.compare, err = flags.GetBool("compare"); err != nil {
		return opts, err
	}
	if opts.deleteID, err = flags.GetString("delete"); err != nil {
		return opts, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return opts, err
	}
	opts.format = normalizeFormat(format)
	if opts.includeOthers, err = flags.GetBool("others"); err != nil {
		return opts, err
	}
	if opts.jsonOutput, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}
	return opts, nil
}

// runHistory dispatches to the requested history action.
func runHistory(ctx context.Context, db *database.CrawlDB, opts historyOptions, out io.Writer) error {
	switch {
	case opts.listDomains:
		return listDomains(ctx, db, out)
	case opts.deleteID != "":
		if err := db.DeleteCrawl(ctx, opts.deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted crawl %s\n", opts.deleteID)
		return nil
	case opts.showID != "":
		result, err := db.GetCrawl(ctx, opts.showID)
		if err != nil {
			return err
		}
		return exportStored(out, result, opts)
	case opts.latest:
		result, err := db.LatestCrawl(ctx, opts.domain)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("no crawl history found for %s", opts.domain)
		}
		return exportStored(out, result, opts)
	case opts.compare:
		return compareLatest(ctx, db, opts, out)
	default:
		return listCrawls(ctx, db, opts.domain, opts.limit, out)
	}
}

// listDomains lists every domain that has stored crawls.
func listDomains(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	domains, err := db.ListDomains(ctx)
	if err != nil {
		return err
	}

	if len(domains) == 0 {
		fmt.Fprintln(out, "No crawled domains found in the database.")
		fmt.Fprintln(out, "\nUse 'wavecrawl crawl --save <domain>' to crawl and save a domain.")
		return nil
	}

	fmt.Fprintf(out, "Crawled domains (%d):\n\n", len(domains))
	for _, d := range domains {
		fmt.Fprintf(out, "  • %s\n", d)
	}
	fmt.Fprintln(out, "\nUse 'wavecrawl history <domain>' to see the crawls of a domain.")
	return nil
}

// listCrawls prints the crawl history as a table.
func listCrawls(ctx context.Context, db *database.CrawlDB, domain string, limit int, out io.Writer) error {
	crawls, err := db.ListCrawls(ctx, domain, limit)
	if err != nil {
		return err
	}

	if len(crawls) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No crawl history found for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No crawl history found.")
		}
		fmt.Fprintln(out, "\nUse 'wavecrawl crawl --save <domain>' to crawl and save a domain.")
		return nil
	}

	if domain != "" {
		fmt.Fprintf(out, "Crawl history for %s (%d crawls):\n\n", domain, len(crawls))
	} else {
		fmt.Fprintf(out, "Crawl history (%d crawls):\n\n", len(crawls))
	}
	fmt.Fprintf(out, "  %-36s  %-20s  %-24s  %-12s  %7s  %7s  %7s\n",
		"ID", "Date", "Domain", "Stop", "Targets", "Others", "Invalid")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 124))

	for _, c := range crawls {
		fmt.Fprintf(out, "  %-36s  %-20s  %-24s  %-12s  %7d  %7d  %7d\n",
			c.ID,
			c.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(c.Domain, 24),
			c.StopReason,
			c.Targets, c.Others, c.Invalid,
		)
	}

	fmt.Fprintln(out, "\nUse 'wavecrawl history --show <id>' to export a stored crawl.")
	return nil
}

// exportStored renders a stored crawl with the selected exporter.
func exportStored(out io.Writer, result *model.CrawlResult, opts historyOptions) error {
	w, err := export.NewWriter(export.Format(opts.format), out, export.Options{
		IncludeOthers: opts.includeOthers,
		Version:       getVersion(),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(result)
	return err
}

// CrawlComparison holds the differences between two crawls of a domain.
type CrawlComparison struct {
	Domain   string                `json:"domain"`
	Previous database.CrawlSummary `json:"previous"`
	Current  database.CrawlSummary `json:"current"`

	// NewTargets are target pages only found by the current crawl.
	NewTargets []string `json:"new_targets,omitempty"`

	// RemovedTargets are target pages only found by the previous crawl.
	RemovedTargets []string `json:"removed_targets,omitempty"`

	UnchangedCount int `json:"unchanged_count"`
}

// compareLatest compares the two most recent crawls of the domain.
func compareLatest(ctx context.Context, db *database.CrawlDB, opts historyOptions, out io.Writer) error {
	crawls, err := db.ListCrawls(ctx, opts.domain, 2)
	if err != nil {
		return err
	}
	if len(crawls) < 2 {
		return fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(crawls))
	}

	current, err := db.GetCrawl(ctx, crawls[0].ID)
	if err != nil {
		return err
	}
	previous, err := db.GetCrawl(ctx, crawls[1].ID)
	if err != nil {
		return err
	}

	comparison := compareCrawls(previous, current)
	comparison.Previous = crawls[1]
	comparison.Current = crawls[0]

	if opts.jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(comparison)
	}
	writeComparisonText(out, comparison)
	return nil
}

// compareCrawls diffs the target pages of two crawls.
func compareCrawls(previous, current *model.CrawlResult) *CrawlComparison {
	c := &CrawlComparison{Domain: current.Domain}

	for u := range current.TargetPages {
		if _, ok := previous.TargetPages[u]; ok {
			c.UnchangedCount++
		} else {
			c.NewTargets = append(c.NewTargets, u)
		}
	}
	for u := range previous.TargetPages {
		if _, ok := current.TargetPages[u]; !ok {
			c.RemovedTargets = append(c.RemovedTargets, u)
		}
	}
	slices.Sort(c.NewTargets)
	slices.Sort(c.RemovedTargets)
	return c
}

// writeComparisonText writes the comparison in human-readable form.
func writeComparisonText(out io.Writer, c *CrawlComparison) {
	fmt.Fprintf(out, "Crawl Comparison: %s\n", c.Domain)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious crawl: %s  (%s)\n", c.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), c.Previous.ID)
	fmt.Fprintf(out, "Current crawl:  %s  (%s)\n", c.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), c.Current.ID)

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Pages", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Targets",
		c.Previous.Targets, c.Current.Targets, formatDelta(c.Current.Targets-c.Previous.Targets))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Others",
		c.Previous.Others, c.Current.Others, formatDelta(c.Current.Others-c.Previous.Others))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Invalid",
		c.Previous.Invalid, c.Current.Invalid, formatDelta(c.Current.Invalid-c.Previous.Invalid))

	if len(c.NewTargets) > 0 {
		fmt.Fprintf(out, "\nNew Targets (%d):\n", len(c.NewTargets))
		for _, u := range c.NewTargets {
			fmt.Fprintf(out, "  [+] %s\n", u)
		}
	}
	if len(c.RemovedTargets) > 0 {
		fmt.Fprintf(out, "\nRemoved Targets (%d):\n", len(c.RemovedTargets))
		for _, u := range c.RemovedTargets {
			fmt.Fprintf(out, "  [-] %s\n", u)
		}
	}
	if c.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d targets\n", c.UnchangedCount)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
