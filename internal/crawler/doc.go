// Package crawler crawls a single web domain breadth-first, in waves.
//
// # Architecture
//
// The Crawler resolves the seed page, then repeats:
//
//  1. ask the Frontier which discovered URLs are neither visited nor invalid
//  2. split them into bundles and hand one bundle to each worker of a new
//     WorkerPool
//  3. every worker resolves its URLs through a PageResolver, classifies the
//     page with the Predicate and records the outcome
//  4. the child links found during the wave become the next candidates
//
// The loop ends when no unvisited URL is left, when the visit limit is
// reached, or when the context is cancelled. Waves never overlap, so at
// most one wave's worth of workers is ever fetching.
//
// # Failures
//
// A malformed URL, an unreachable host or a non-retryable HTTP status puts
// the URL into the invalid set. A timeout (or HTTP 429/503) reinstates the
// URL for the next wave and pauses the worker for a fixed cooldown.
//
// # Usage
//
//	resolver := crawler.NewHTTPResolver(client, crawler.WithRequestTimeout(10*time.Second))
//	c := crawler.New(resolver, crawler.WithWorkers(10), crawler.WithVisitLimit(1000))
//	result, err := c.Crawl(ctx, "example.com")
package crawler
