// Package main provides the entry point for the wavecrawl CLI.
//
// wavecrawl crawls a single domain breadth-first, wave by wave, and records
// which pages match a target predicate.
//
// Usage:
//
//	wavecrawl crawl <domain>...
//	wavecrawl history [domain]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
