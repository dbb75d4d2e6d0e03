package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/wavecrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "wavecrawl.db"

// ErrNotFound is returned when a crawl ID does not exist.
var ErrNotFound = errors.New("crawl not found")

// CrawlDB provides SQLite-based storage for crawl results.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	// Pragmas in the DSN apply to every new connection.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per finished crawl
	CREATE TABLE IF NOT EXISTS crawls (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		seed TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		waves INTEGER NOT NULL DEFAULT 0,
		timeouts INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_crawls_domain ON crawls(domain);
	CREATE INDEX IF NOT EXISTS idx_crawls_started ON crawls(started_at);

	-- Classified pages of a crawl
	CREATE TABLE IF NOT EXISTS pages (
		crawl_id TEXT NOT NULL REFERENCES crawls(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		classification TEXT NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (crawl_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_class ON pages(crawl_id, classification);

	-- URLs that failed non-retryably
	CREATE TABLE IF NOT EXISTS invalid_urls (
		crawl_id TEXT NOT NULL REFERENCES crawls(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		PRIMARY KEY (crawl_id, url)
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCrawl stores result in a single transaction and returns its ID.
// A result without an ID is assigned a new UUID, which is written back
// to result.ID.
func (cdb *CrawlDB) SaveCrawl(ctx context.Context, result *model.CrawlResult) (string, error) {
	id := result.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
	INSERT INTO crawls (id, domain, seed, started_at, finished_at, waves, timeouts, stop_reason, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		domainKey(result.Domain),
		result.Seed,
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.FinishedAt),
		result.Waves,
		result.Timeouts,
		string(result.StopReason),
		result.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert crawl: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (crawl_id, url, title, classification, hash) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for _, page := range result.Pages(true) {
		if _, err := pageStmt.ExecContext(ctx, id, page.URL(), page.Title(), page.Classification(), page.Hash()); err != nil {
			return "", fmt.Errorf("failed to insert page %s: %w", page.URL(), err)
		}
	}

	for _, u := range result.Invalid {
		if _, err := tx.ExecContext(ctx, `INSERT INTO invalid_urls (crawl_id, url) VALUES (?, ?)`, id, u); err != nil {
			return "", fmt.Errorf("failed to insert invalid URL %s: %w", u, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit crawl: %w", err)
	}

	result.ID = id
	return id, nil
}

// CrawlSummary is one row of the crawl history.
type CrawlSummary struct {
	ID         string           `json:"id"`
	Domain     string           `json:"domain"`
	Seed       string           `json:"seed"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	StopReason model.StopReason `json:"stop_reason"`
	Targets    int              `json:"targets"`
	Others     int              `json:"others"`
	Invalid    int              `json:"invalid"`
}

// Duration returns the wall-clock time of the crawl.
func (s CrawlSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ListCrawls returns the stored crawls, newest first. An empty domain
// lists every domain; limit <= 0 means no limit.
func (cdb *CrawlDB) ListCrawls(ctx context.Context, domain string, limit int) ([]CrawlSummary, error) {
	query := `
	SELECT c.id, c.domain, c.seed, c.started_at, c.finished_at, c.stop_reason,
		(SELECT COUNT(*) FROM pages p WHERE p.crawl_id = c.id AND p.classification = ?),
		(SELECT COUNT(*) FROM pages p WHERE p.crawl_id = c.id AND p.classification = ?),
		(SELECT COUNT(*) FROM invalid_urls i WHERE i.crawl_id = c.id)
	FROM crawls c
	WHERE 1=1
	`
	args := []any{model.ClassTarget, model.ClassOther}

	if domain != "" {
		query += " AND c.domain = ?"
		args = append(args, domainKey(domain))
	}
	query += " ORDER BY c.started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawls: %w", err)
	}
	defer rows.Close()

	summaries := make([]CrawlSummary, 0)
	for rows.Next() {
		var s CrawlSummary
		var started, finished, reason string
		if err := rows.Scan(&s.ID, &s.Domain, &s.Seed, &started, &finished, &reason, &s.Targets, &s.Others, &s.Invalid); err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		s.StartedAt = parseTimestamp(started)
		s.FinishedAt = parseTimestamp(finished)
		s.StopReason = model.StopReason(reason)
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// GetCrawl rebuilds a stored crawl. Pages come back without content.
func (cdb *CrawlDB) GetCrawl(ctx context.Context, id string) (*model.CrawlResult, error) {
	var started, finished, reason string
	restored := model.NewCrawlResult("")
	err := cdb.db.QueryRowContext(ctx, `
	SELECT id, domain, seed, started_at, finished_at, waves, timeouts, stop_reason, error
	FROM crawls WHERE id = ?
	`, id).Scan(&restored.ID, &restored.Domain, &restored.Seed, &started, &finished,
		&restored.Waves, &restored.Timeouts, &reason, &restored.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl: %w", err)
	}
	restored.StartedAt = parseTimestamp(started)
	restored.FinishedAt = parseTimestamp(finished)
	restored.StopReason = model.StopReason(reason)

	if err := cdb.loadPages(ctx, restored); err != nil {
		return nil, err
	}
	if err := cdb.loadInvalid(ctx, restored); err != nil {
		return nil, err
	}
	return restored, nil
}

func (cdb *CrawlDB) loadPages(ctx context.Context, result *model.CrawlResult) error {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, title, classification, hash FROM pages WHERE crawl_id = ? ORDER BY url
	`, result.ID)
	if err != nil {
		return fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u, title, class, hash string
		if err := rows.Scan(&u, &title, &class, &hash); err != nil {
			return fmt.Errorf("failed to scan page: %w", err)
		}
		page := model.RestorePage(u, title, class == model.ClassTarget, hash)
		if page.IsTarget() {
			result.TargetPages[u] = page
		} else {
			result.OtherPages[u] = page
		}
		result.Visited = append(result.Visited, u)
	}
	slices.Sort(result.Visited)
	return rows.Err()
}

func (cdb *CrawlDB) loadInvalid(ctx context.Context, result *model.CrawlResult) error {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url FROM invalid_urls WHERE crawl_id = ? ORDER BY url`, result.ID)
	if err != nil {
		return fmt.Errorf("failed to get invalid URLs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return fmt.Errorf("failed to scan invalid URL: %w", err)
		}
		result.Invalid = append(result.Invalid, u)
	}
	return rows.Err()
}

// LatestCrawl returns the most recent crawl of domain, or nil if there is none.
func (cdb *CrawlDB) LatestCrawl(ctx context.Context, domain string) (*model.CrawlResult, error) {
	summaries, err := cdb.ListCrawls(ctx, domain, 1)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil //nolint:nilnil // no crawl is not an error
	}
	return cdb.GetCrawl(ctx, summaries[0].ID)
}

// domainKey is the form a domain is stored and looked up under, so
// "shop.example", "https://shop.example/" and "SHOP.example" share history.
func domainKey(domain string) string {
	if host := model.Domain(domain); host != "" {
		return host
	}
	return strings.TrimSpace(domain)
}

// HasRecentCrawl checks if domain was crawled within the specified duration.
func (cdb *CrawlDB) HasRecentCrawl(ctx context.Context, domain string, within time.Duration) (bool, error) {
	cutoff := formatTimestamp(time.Now().Add(-within))

	var count int
	err := cdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM crawls WHERE domain = ? AND finished_at > ?
	`, domainKey(domain), cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}

	return count > 0, nil
}

// ListDomains returns every crawled domain in alphabetical order.
func (cdb *CrawlDB) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT domain FROM crawls ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	domains := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}

	return domains, rows.Err()
}

// DeleteCrawl removes a crawl together with its pages.
func (cdb *CrawlDB) DeleteCrawl(ctx context.Context, id string) error {
	res, err := cdb.db.ExecContext(ctx, `DELETE FROM crawls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete crawl: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// storedTimestampFormat sorts lexically in time order for UTC values.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestampFormat,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
