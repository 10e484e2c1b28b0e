// Package database provides SQLite-based storage for oadoi.
//
// The Store holds:
//   - Works keyed by clean DOI, with the raw bibliographic record, the
//     last landing-page scrape snapshot, the canonical response and its
//     flattened summary columns
//   - Repository records harvested from OAI-PMH feeds, keyed by record id
//   - Feed sources with their harvest checkpoints
//   - PubMed Central links and reported noncompliant URLs keyed by DOI
//
// Relationships are never traversed implicitly: callers use explicit
// finders such as RecordsByDOI or PMCLinks. Writes are upserts, so
// concurrent writers of the same row follow last-writer-wins.
//
// We use SQLite via modernc.org/sqlite because it is CGO-free and keeps
// the whole store in a single file. WAL mode is enabled by default.
package database
