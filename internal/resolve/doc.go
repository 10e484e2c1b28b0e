// Package resolve decides whether a work is open access.
//
// An Engine runs one recalculation pass per work: the raw bibliographic
// record is normalized, repository matches are fetched and filtered, the
// probes collect candidate locations, the consolidator ranks them and picks
// the winner, and the change detector decides whether the canonical
// response moved. Recalculate never fails; faults end up in the work's
// error log so that a pass always yields a response.
//
// RefreshHybridScrape is the only operation that fetches the publisher
// landing page. Its snapshot is persisted on the work and read by later
// passes.
package resolve
