package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/wavecrawl/internal/config"
	"github.com/nao1215/wavecrawl/internal/crawler"
	"github.com/nao1215/wavecrawl/internal/database"
	"github.com/nao1215/wavecrawl/internal/export"
	wlog "github.com/nao1215/wavecrawl/internal/log"
	"github.com/nao1215/wavecrawl/internal/pipeline"
	"github.com/nao1215/wavecrawl/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <domain>...",
		Short: "Crawl one or more domains and export the target pages",
		Long: `Crawl visits every page of a domain reachable from its home page, wave by
wave, and exports the pages that match the target predicate.

Without --target-selector or --target-pattern every page is a target.

Examples:
  # Crawl a shop and list product pages as CSV
  wavecrawl crawl --target-selector "div.productName" --format csv shop.example

  # Write a Markdown report, including non-target pages
  wavecrawl crawl --format markdown --others -o report shop.example

  # Save CSV to products.csv and still see a text report
  wavecrawl crawl -f csv -o products --tee shop.example

  # Crawl two domains concurrently and archive the results
  wavecrawl crawl --batch 2 --save shop.example blog.example

  # Crawl through a SOCKS5 proxy, or through an embedded Tor daemon
  wavecrawl crawl --proxy 127.0.0.1:9050 shop.example
  wavecrawl crawl --tor exampleonionaddress.onion

Press Ctrl+C to stop: the partial result is still exported and saved.`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("visit-limit", "l", config.DefaultVisitLimit,
		"Maximum number of visits per domain")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent workers per wave")
	cmd.Flags().BoolP("greedy", "g", false,
		"Keep parsed pages in memory until the crawl ends")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("cooldown", config.DefaultCooldown,
		"Pause after a timeout or throttling response")
	cmd.Flags().Int("max-retries", 0,
		"Maximum retries per URL after timeouts (0 = unlimited)")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second per domain (0 = unlimited)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Target detection flags
	cmd.Flags().StringP("target-selector", "s", "",
		"CSS selector marking target pages (e.g. \"div.productName\")")
	cmd.Flags().StringSliceP("target-pattern", "P", nil,
		"URL path glob marking target pages (repeatable)")

	// Transport flags
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port)")
	cmd.Flags().Bool("tor", false,
		"Crawl through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().Bool("insecure", false,
		"Skip TLS certificate verification")

	// Output flags
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Output format: text, csv, json, markdown")
	cmd.Flags().Bool("others", false,
		"Include non-target pages in the output")
	cmd.Flags().StringP("output", "o", "",
		"Write the result to a file (the format extension is added; the domain is appended for several domains)")
	cmd.Flags().Bool("tee", false,
		"With --output, also print a text report to standard output")
	cmd.Flags().Bool("json-logs", false,
		"Write logs as JSON")

	// Batch and storage flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of domains crawled concurrently")
	cmd.Flags().Bool("save", false,
		"Save results to the results database")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip domains saved within this duration (requires --save)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the results database")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: ./.wavecrawl, then $XDG_CONFIG_HOME/wavecrawl/config.yaml, then ~/.wavecrawl)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.JSONLogs)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if cfg.VisitLimit, err = flags.GetInt("visit-limit"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.Greedy, err = flags.GetBool("greedy"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Cooldown, err = flags.GetDuration("cooldown"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.TargetSelector, err = flags.GetString("target-selector"); err != nil {
		return nil, err
	}
	if cfg.TargetPatterns, err = flags.GetStringSlice("target-pattern"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.InsecureTLS, err = flags.GetBool("insecure"); err != nil {
		return nil, err
	}

	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}
	cfg.Format = normalizeFormat(format)

	if cfg.IncludeOthers, err = flags.GetBool("others"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Tee, err = flags.GetBool("tee"); err != nil {
		return nil, err
	}
	if cfg.JSONLogs, err = flags.GetBool("json-logs"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.SkipRecent, err = flags.GetDuration("skip-recent"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit --config must exist; the implicit search may find nothing.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		if cfg.SiteConfigs, err = config.LoadConfigFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.Domains = args
	return cfg, nil
}

// normalizeFormat lower-cases format and expands the "md" alias.
func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "md" {
		return string(export.FormatMarkdown)
	}
	return format
}

// setupLogger creates the secure structured logger.
func setupLogger(w io.Writer, verbose, jsonLogs bool) *slog.Logger {
	if jsonLogs {
		return wlog.NewSecureJSONLogger(w, verbose)
	}
	return wlog.NewSecureLogger(w, verbose)
}

// runCrawl crawls every configured domain and reports a summary on status.
func runCrawl(ctx context.Context, cfg *config.Config, out, status io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"domains", cfg.Domains,
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	proxyAddress := cfg.ProxyAddress
	if cfg.UseTor {
		embedded, err := startEmbeddedTor(ctx, cfg, status, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		proxyAddress = embedded.SocksAddr()
	} else if proxyAddress != "" {
		if st := transport.CheckProxy(ctx, proxyAddress); st != transport.ProxyStatusOK {
			return fmt.Errorf("proxy check failed for %s: %w", proxyAddress, st.Error())
		}
		logger.Info("proxy connection verified", "address", proxyAddress)
	}

	shared := pipeline.NewSyncWriter(out)
	pipelines := make(map[string]*pipeline.Pipeline, len(cfg.Domains))
	for _, domain := range cfg.Domains {
		p, err := createPipelineForDomain(cfg, domain, proxyAddress, db, shared, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", domain, err)
		}
		pipelines[domain] = p
	}

	bp := pipeline.NewBatchProcessor(
		func(domain string) *pipeline.Pipeline { return pipelines[domain] },
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	var mu sync.Mutex
	jobs := make([]*pipeline.Job, len(cfg.Domains))
	err := bp.ProcessBatchWithCallback(ctx, cfg.Domains, func(job *pipeline.Job, i int) {
		mu.Lock()
		defer mu.Unlock()
		jobs[i] = job
		printJobLine(status, job, i, len(jobs))
	})
	fmt.Fprintf(status, "Finished %d domain(s) in %s\n", len(jobs), time.Since(startTime).Round(time.Millisecond))

	if err != nil && errors.Is(err, context.Canceled) {
		fmt.Fprintln(status, "Interrupted: partial results were exported.")
		return nil
	}
	return jobErrors(jobs)
}

// createPipelineForDomain builds the skip-recent, crawl, export and persist
// steps for domain with its site-specific settings.
func createPipelineForDomain(
	cfg *config.Config,
	domain, proxyAddress string,
	db *database.CrawlDB,
	out io.Writer,
	logger *slog.Logger,
) (*pipeline.Pipeline, error) {
	site := cfg.Site(domain)

	client, err := transport.NewHTTPClient(
		transport.WithProxy(proxyAddress),
		transport.WithCookie(site.Cookie),
		transport.WithHeaders(site.Headers),
		transport.WithInsecureTLS(cfg.InsecureTLS),
	)
	if err != nil {
		return nil, err
	}

	resolver := crawler.NewHTTPResolver(client,
		crawler.WithRequestTimeout(cfg.Timeout),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithRateLimit(cfg.RateLimit, 1),
	)

	predicate, err := buildPredicate(site.TargetSelector, site.TargetPatterns)
	if err != nil {
		return nil, err
	}

	domainLogger := logger.With("domain", domain)
	crawlOpts := []crawler.Option{
		crawler.WithVisitLimit(site.VisitLimit),
		crawler.WithWorkers(site.Workers),
		crawler.WithGreedy(cfg.Greedy),
		crawler.WithCooldown(cfg.Cooldown),
		crawler.WithMaxRetries(cfg.MaxRetries),
		crawler.WithPredicate(predicate),
		crawler.WithScope(crawler.Scope{Ignore: site.IgnorePatterns, Follow: site.FollowPatterns}),
		crawler.WithWaveObserver(func(w crawler.WaveInfo) {
			domainLogger.Info("wave", "number", w.Number, "frontier", len(w.Frontier), "visits", w.Visits)
		}),
	}

	exportOpts := []pipeline.ExportStepOption{
		pipeline.WithExportOptions(export.Options{IncludeOthers: cfg.IncludeOthers, Version: getVersion()}),
		pipeline.WithExportLogger(logger),
	}
	if cfg.ReportFile != "" {
		file := cfg.ReportFile
		if len(cfg.Domains) > 1 {
			file = pipeline.ExportFileName(file, domain)
		}
		exportOpts = append(exportOpts, pipeline.WithExportFile(file))
		if cfg.Tee {
			exportOpts = append(exportOpts, pipeline.WithExportTee(out))
		}
	} else {
		exportOpts = append(exportOpts, pipeline.WithExportOutput(out))
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	if db != nil && cfg.SkipRecent > 0 {
		p.AddStep(pipeline.NewSkipRecentStep(db, cfg.SkipRecent, logger))
	}
	p.AddSteps(
		pipeline.NewCrawlStep(resolver,
			pipeline.WithCrawlLogger(logger),
			pipeline.WithCrawlerOptions(crawlOpts...)),
		pipeline.NewExportStep(export.Format(cfg.Format), exportOpts...),
	)
	if db != nil {
		p.AddStep(pipeline.NewPersistStep(db, logger))
	}
	domainLogger.Debug("pipeline ready", "steps", p.StepNames())
	return p, nil
}

// buildPredicate combines the target selector and patterns. Without
// either, every page is a target.
func buildPredicate(selector string, patterns []string) (crawler.Predicate, error) {
	var preds []crawler.Predicate
	if selector != "" {
		p, err := crawler.SelectorPredicate(selector)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(patterns) > 0 {
		preds = append(preds, crawler.PathPredicate(patterns...))
	}
	switch len(preds) {
	case 0:
		return crawler.MatchAll, nil
	case 1:
		return preds[0], nil
	default:
		return crawler.AnyOf(preds...), nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon and verifies its proxy.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, status io.Writer, logger *slog.Logger) (*transport.EmbeddedTor, error) {
	fmt.Fprintln(status, "Starting embedded Tor daemon...")
	fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps.\n\n")

	embedded := transport.NewEmbeddedTor(transport.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	logger.Info("embedded Tor daemon started", "socks_addr", embedded.SocksAddr())

	if st := transport.CheckProxy(ctx, embedded.SocksAddr()); st != transport.ProxyStatusOK {
		_ = embedded.Stop() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("embedded Tor proxy check failed: %w", st.Error())
	}
	return embedded, nil
}

// printJobLine writes the summary line of the index-th of total jobs as
// soon as it finishes.
func printJobLine(w io.Writer, job *pipeline.Job, index, total int) {
	prefix := fmt.Sprintf("[%d/%d] %s:", index+1, total, job.Domain)
	switch {
	case job.Skipped:
		fmt.Fprintf(w, "%s skipped (crawled recently)\n", prefix)
	case job.Result == nil:
		fmt.Fprintf(w, "%s not crawled: %v\n", prefix, job.Err)
	default:
		r := job.Result
		fmt.Fprintf(w, "%s %s, %d targets, %d others, %d invalid, %d waves in %s\n",
			prefix, r.StopReason, len(r.TargetPages), len(r.OtherPages), len(r.Invalid),
			r.Waves, r.Duration().Round(time.Millisecond))
	}
}

// jobErrors joins the errors of all jobs, ignoring cancellations.
func jobErrors(jobs []*pipeline.Job) error {
	var errs []error
	for _, job := range jobs {
		if job == nil || job.Err == nil || errors.Is(job.Err, context.Canceled) {
			continue
		}
		errs = append(errs, job.Err)
	}
	return errors.Join(errs...)
}
