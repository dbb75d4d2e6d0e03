// Package database provides SQLite-based storage of crawl results.
//
// This package implements the CrawlDB, which stores:
//   - one row per finished crawl with its summary
//   - the classified pages of every crawl (metadata only, no content)
//   - the URLs that could not be resolved
//
// The database is an archive of results for the history command. It is
// never used to resume a crawl.
package database
