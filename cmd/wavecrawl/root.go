package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for wavecrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wavecrawl",
		Short: "Breadth-first wave crawler for a single domain",
		Long: `wavecrawl crawls a website breadth-first in waves. Every URL of a wave is
fetched by a bounded pool of workers; the links they discover form the next
wave. Pages matching a target predicate (a CSS selector or URL patterns) are
recorded and exported as text, CSV, JSON or Markdown.

Timeouts and throttling responses put the URL back into the next wave after a
cooldown. The crawl stops when no new URL is left or the visit limit is hit.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
