// Package pipeline runs the per-domain stages of a wavecrawl invocation.
//
// Each seed domain becomes a Job that flows through an ordered list of
// steps: an optional recent-crawl check, the wave crawl itself, export of
// the result and persistence into the results database. BatchProcessor
// runs one pipeline per domain with bounded concurrency using errgroup.
//
// Once a step has produced a crawl result, the remaining steps still run
// after the context is cancelled, so an interrupted crawl is exported and
// archived as a partial result.
package pipeline
