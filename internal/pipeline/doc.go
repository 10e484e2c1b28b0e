// Package pipeline collects OA evidence for a work.
//
// A recalculation pass runs a fixed sequence of probes over a Pass. Each
// probe inspects the work and its related data and contributes zero or one
// candidate location (the green probe one per open repository match). Probes
// record their own network and parse failures in the work's error log and
// never abort the pass.
//
// The package also provides BatchProcessor, a best-effort fan-out used to
// recalculate many works at once: every unit runs in its own failure domain
// with a per-unit timeout, and the caller receives a report with one result
// per unit.
package pipeline
