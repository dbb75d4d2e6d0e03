package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/wavecrawl/internal/crawler"
	"github.com/nao1215/wavecrawl/internal/database"
	"github.com/nao1215/wavecrawl/internal/export"
	"github.com/nao1215/wavecrawl/internal/model"
)

// ErrNoResult is returned by steps that need a crawl result when the job
// has none.
var ErrNoResult = errors.New("job has no crawl result")

// CrawlStep runs the wave crawler against the job's domain.
type CrawlStep struct {
	resolver crawler.PageResolver
	opts     []crawler.Option
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlerOptions appends options passed to every crawler the step builds.
func WithCrawlerOptions(opts ...crawler.Option) CrawlStepOption {
	return func(s *CrawlStep) {
		s.opts = append(s.opts, opts...)
	}
}

// WithCrawlLogger sets the logger handed to the crawler.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step fetching pages through resolver.
func NewCrawlStep(resolver crawler.PageResolver, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls job.Domain and stores the result in the job. When the seed
// cannot be resolved the job still receives a failed result so it can be
// reported.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	opts := append([]crawler.Option{crawler.WithLogger(s.logger.With("domain", job.Domain))}, s.opts...)
	c := crawler.New(s.resolver, opts...)

	started := time.Now()
	result, err := c.Crawl(ctx, job.Domain)
	if err != nil {
		failed := model.NewCrawlResult(job.Domain)
		failed.StartedAt = started
		failed.FinishedAt = time.Now()
		failed.StopReason = model.StopFailed
		failed.Error = err.Error()
		job.Result = failed
		return fmt.Errorf("crawl %s: %w", job.Domain, err)
	}
	job.Result = result
	return nil
}

// ExportStep renders the job's result with an export writer, either to a
// file or to a shared output stream.
type ExportStep struct {
	format export.Format
	opts   export.Options

	// file is the destination path; the format extension is added when missing.
	file string

	// output receives the rendering when file is empty.
	output io.Writer

	// tee, when set alongside file, also receives a text rendering.
	tee io.Writer

	logger *slog.Logger
}

// ExportStepOption configures an ExportStep.
type ExportStepOption func(*ExportStep)

// WithExportFile writes the result to path.
func WithExportFile(path string) ExportStepOption {
	return func(s *ExportStep) {
		s.file = path
	}
}

// WithExportOutput writes the result to w. Pipelines running concurrently
// should share a writer wrapped with NewSyncWriter.
func WithExportOutput(w io.Writer) ExportStepOption {
	return func(s *ExportStep) {
		s.output = w
	}
}

// WithExportTee also renders a text report to w when the result is
// written to a file. Like WithExportOutput, w should be a SyncWriter when
// pipelines share it.
func WithExportTee(w io.Writer) ExportStepOption {
	return func(s *ExportStep) {
		s.tee = w
	}
}

// WithExportOptions sets the writer options.
func WithExportOptions(opts export.Options) ExportStepOption {
	return func(s *ExportStep) {
		s.opts = opts
	}
}

// WithExportLogger sets the step logger.
func WithExportLogger(logger *slog.Logger) ExportStepOption {
	return func(s *ExportStep) {
		s.logger = logger
	}
}

// NewExportStep creates an export step for format. Without a file or an
// output the result goes to standard output.
func NewExportStep(format export.Format, opts ...ExportStepOption) *ExportStep {
	s := &ExportStep{
		format: format,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.output == nil {
		s.output = os.Stdout
	}
	return s
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do writes job.Result.
func (s *ExportStep) Do(_ context.Context, job *Job) error {
	if job.Result == nil {
		return ErrNoResult
	}

	if s.file == "" {
		var buf bytes.Buffer
		if err := s.write(&buf, job.Result); err != nil {
			return err
		}
		if _, err := s.output.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		return nil
	}

	path := export.AddExtension(s.file, export.Extension(s.format))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	fileWriter, err := export.NewWriter(s.format, f, s.opts)
	if err != nil {
		_ = f.Close() //nolint:errcheck // the format error wins
		return err
	}
	writers := []export.Writer{fileWriter}
	var teeBuf bytes.Buffer
	if s.tee != nil {
		textWriter, err := export.NewWriter(export.FormatText, &teeBuf, s.opts)
		if err != nil {
			_ = f.Close() //nolint:errcheck // the format error wins
			return err
		}
		writers = append(writers, textWriter)
	}
	if _, err := export.NewMultiWriter(writers...).Write(job.Result); err != nil {
		_ = f.Close() //nolint:errcheck // the write error wins
		return fmt.Errorf("failed to export %s: %w", job.Result.Domain, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if s.tee != nil {
		if _, err := s.tee.Write(teeBuf.Bytes()); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
	}
	s.logger.Info("result exported",
		"domain", job.Domain,
		"file", path,
		"format", string(s.format),
	)
	return nil
}

func (s *ExportStep) write(w io.Writer, result *model.CrawlResult) error {
	writer, err := export.NewWriter(s.format, w, s.opts)
	if err != nil {
		return err
	}
	if _, err := writer.Write(result); err != nil {
		return fmt.Errorf("failed to export %s: %w", result.Domain, err)
	}
	return nil
}

// ExportFileName returns the per-domain export path used when several
// domains share one --report-file base name.
func ExportFileName(base, domain string) string {
	host := model.Domain(domain)
	if host == "" {
		host = domain
	}
	host = strings.NewReplacer(":", "_", "/", "_").Replace(host)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + host + ext
}

// PersistStep saves the job's result into the results database.
type PersistStep struct {
	db     *database.CrawlDB
	logger *slog.Logger
}

// NewPersistStep creates a persist step writing into db.
func NewPersistStep(db *database.CrawlDB, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves job.Result and records the assigned ID on it.
func (s *PersistStep) Do(ctx context.Context, job *Job) error {
	if job.Result == nil {
		return ErrNoResult
	}
	id, err := s.db.SaveCrawl(ctx, job.Result)
	if err != nil {
		return fmt.Errorf("failed to save crawl of %s: %w", job.Domain, err)
	}
	s.logger.Info("crawl saved", "domain", job.Domain, "id", id)
	return nil
}

// SkipRecentStep marks the job skipped when the database already holds a
// crawl of the domain finished within the given window.
type SkipRecentStep struct {
	db     *database.CrawlDB
	within time.Duration
	logger *slog.Logger
}

// NewSkipRecentStep creates a recent-crawl check.
func NewSkipRecentStep(db *database.CrawlDB, within time.Duration, logger *slog.Logger) *SkipRecentStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkipRecentStep{db: db, within: within, logger: logger}
}

// Name returns the step name.
func (s *SkipRecentStep) Name() string {
	return "skip_recent"
}

// Do sets job.Skipped when a recent crawl exists.
func (s *SkipRecentStep) Do(ctx context.Context, job *Job) error {
	recent, err := s.db.HasRecentCrawl(ctx, strings.TrimSpace(job.Domain), s.within)
	if err != nil {
		return fmt.Errorf("failed to check crawl history: %w", err)
	}
	if recent {
		s.logger.Info("recent crawl found, skipping", "domain", job.Domain, "within", s.within)
		job.Skipped = true
	}
	return nil
}

// syncWriter serializes writes to a shared stream.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w so concurrent export steps do not interleave.
func NewSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
