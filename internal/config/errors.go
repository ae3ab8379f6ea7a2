package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is; Validate wraps them with the offending value.
var (
	// ErrNoSeed is returned when neither the command line nor the file names a seed URL.
	ErrNoSeed = errors.New("no seed URL specified")

	// ErrInvalidStopBasis is returned for a stop basis other than "time" or "count".
	ErrInvalidStopBasis = errors.New("invalid stop basis: must be time or count")

	// ErrInvalidDuration is returned when a time-bound crawl has no positive duration.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")

	// ErrInvalidMaxURLs is returned when a count-bound crawl has no positive limit.
	ErrInvalidMaxURLs = errors.New("invalid max URLs: must be positive")

	// ErrInvalidWorkers is returned when the worker pool size is out of range.
	ErrInvalidWorkers = errors.New("invalid workers: must be between 1 and 1000")

	// ErrInvalidTimeout is returned when a fetch or engine timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidVisitedMode is returned for a visited set mode other than "exact" or "bloom".
	ErrInvalidVisitedMode = errors.New("invalid visited mode: must be exact or bloom")

	// ErrInvalidLogLevel is returned for an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn or error")

	// ErrInvalidLogFormat is returned for a log format other than "text" or "json".
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
