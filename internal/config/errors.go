package config

import "errors"

// Configuration validation errors returned by Config.Validate and the
// loaders. Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when a command that works on DOIs got none.
	ErrNoTarget = errors.New("no target specified: provide at least one DOI")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidChunkSize is returned when the harvest chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --csv is given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown and --csv")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidThreshold is returned when a match threshold in the
	// configuration file is negative.
	ErrInvalidThreshold = errors.New("invalid match threshold: must be non-negative")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrDuplicateOverride is returned when the override table lists a DOI twice.
	ErrDuplicateOverride = errors.New("duplicate override")
)
