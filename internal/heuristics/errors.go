package heuristics

import "errors"

var (
	// ErrEmptyRegistryEntry is returned when a registry entry has neither
	// an ISSN nor a title.
	ErrEmptyRegistryEntry = errors.New("registry entry needs an issn or a title")

	// ErrBadPrefix is returned when an allowlisted prefix is blank.
	ErrBadPrefix = errors.New("prefix must not be blank")
)
