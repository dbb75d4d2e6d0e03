package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of domains crawled at once.
const DefaultConcurrency = 2

// BatchProcessor runs one pipeline per seed domain with bounded concurrency.
type BatchProcessor struct {
	// pipelineFactory creates the pipeline for a domain, so per-site
	// settings can differ between domains.
	pipelineFactory func(domain string) *Pipeline

	// concurrency is the maximum number of domains processed at once.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent pipelines.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func(domain string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatchWithCallback runs the pipeline for every domain and calls
// callback for each finished job with its index in domains. A failing domain
// does not stop the others; its error is kept in the job. Domains not
// started before ctx is cancelled get a job carrying the context error, so
// callback runs exactly once per domain. It runs on the goroutine that
// processed the domain and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	domains []string,
	callback func(job *Job, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_domains", len(domains),
		"concurrency", bp.concurrency,
	)
	start := time.Now()
	err := bp.run(ctx, domains, callback)
	bp.logger.Info("batch processing complete",
		"total_domains", len(domains),
		"elapsed", time.Since(start),
	)
	return err
}

func (bp *BatchProcessor) run(ctx context.Context, domains []string, done func(*Job, int)) error {
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, domain := range domains {
		g.Go(func() error {
			job := NewJob(domain)
			if err := ctx.Err(); err != nil {
				job.Err = err
				done(job, i)
				return nil
			}

			bp.logger.Info("processing domain",
				"domain", domain,
				"index", i+1,
				"total", len(domains),
			)

			if err := bp.pipelineFactory(domain).Execute(ctx, job); err != nil {
				bp.logger.Warn("domain failed", "domain", domain, "error", err)
			} else {
				bp.logger.Info("domain completed", "domain", domain)
			}
			done(job, i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
