// Package model defines the data structures shared by the crawler, the
// exporters and the results database.
//
// This package contains the following main types:
//   - Document: a resolved URL, i.e. the fetched response and its parsed HTML
//   - Page: an immutable, classified page built from a Document
//   - CrawlResult: the frozen outcome of a crawl
//
// URL normalization (NormalizeURL) also lives here because every other
// package compares URLs by their normalized string form.
package model
