package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoDomain is returned when no seed domain is given.
	ErrNoDomain = errors.New("no domain specified: provide at least one seed domain")

	// ErrInvalidDomain is returned when a seed cannot be turned into an http(s) URL.
	ErrInvalidDomain = errors.New("invalid domain: must be a host name or an http(s) URL")

	// ErrInvalidVisitLimit is returned when the visit limit is not positive.
	ErrInvalidVisitLimit = errors.New("invalid visit limit: must be positive")

	// ErrInvalidWorkers is returned when the number of workers is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCooldown is returned when the cooldown is negative.
	ErrInvalidCooldown = errors.New("invalid cooldown: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry cap is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidFormat is returned for an unknown export format.
	ErrInvalidFormat = errors.New("invalid format: must be one of text, csv, json, markdown")

	// ErrConflictingTransports is returned when both --tor and --proxy are set.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")

	// ErrSkipRecentWithoutDB is returned when --skip-recent is used without
	// the results database.
	ErrSkipRecentWithoutDB = errors.New("--skip-recent requires --save")
)
