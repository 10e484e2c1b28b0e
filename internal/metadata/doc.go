// Package metadata derives canonical bibliographic fields from the raw
// record supplied for a work.
//
// The raw record is an opaque nested map (decoded JSON): titles, container
// titles and authors are arrays, the issue date is a nested list of date
// parts and licenses are tagged by content version. Every derivation fails
// soft: malformed or missing data yields an absent field, never an error.
package metadata
