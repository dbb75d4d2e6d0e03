package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/wavecrawl/internal/model"
)

// Job carries one seed domain through the pipeline.
type Job struct {
	// Domain is the seed domain or URL given by the user.
	Domain string

	// Result is set by the crawl step. It may be partial when the crawl
	// was cancelled.
	Result *model.CrawlResult

	// Skipped is set by a step that decides the domain needs no work.
	// The pipeline stops executing further steps for a skipped job.
	Skipped bool

	// PerformedSteps lists the names of the steps that ran.
	PerformedSteps []string

	// Err is the first step error, if any.
	Err error
}

// NewJob returns a job for domain.
func NewJob(domain string) *Job {
	return &Job{
		Domain:         domain,
		PerformedSteps: make([]string, 0),
	}
}

// Step is one stage of a domain's processing: skip check, crawl, export or
// persist. Each step sees the job as the previous steps left it.
type Step interface {
	Do(ctx context.Context, job *Job) error
	Name() string
}

// Pipeline runs its steps in order for one job at a time.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after a failure, so a
// crawl that errored part way is still exported. Only the first error is
// kept in Job.Err.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New returns an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Cancellation is checked before each step. A job that has no result yet
// stops there; a job holding a (partial) result keeps going with a context
// detached from the cancellation so export and persistence still happen.
//
// Returns the first error encountered if continueOnError is false.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		if job.Skipped {
			p.logger.Info("job skipped",
				"domain", job.Domain,
				"remaining_from", step.Name(),
			)
			return nil
		}

		if err := ctx.Err(); err != nil {
			if job.Result == nil {
				p.logger.Warn("pipeline cancelled",
					"step", step.Name(),
					"domain", job.Domain,
					"reason", err,
				)
				p.record(job, err)
				return err
			}
			ctx = context.WithoutCancel(ctx)
		}

		log := p.logger.With("step", step.Name(), "domain", job.Domain)
		start := time.Now()
		err := step.Do(ctx, job)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			log.Error("step failed", "error", err, "elapsed", elapsed)
			p.record(job, err)
			if !p.continueOnError {
				return err
			}
		} else {
			log.Debug("step completed", "elapsed", elapsed)
		}

		job.PerformedSteps = append(job.PerformedSteps, step.Name())
	}

	return nil
}

func (p *Pipeline) record(job *Job, err error) {
	if job.Err == nil {
		job.Err = err
	}
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
