// Package harvest ingests OAI-PMH feeds into the repository record store.
//
// A Harvester runs one feed as a sequential state machine:
//
//	IDLE → LISTING → PARSING → FILTERING → BUFFERING → COMMITTING → DONE
//
// Pages are followed through resumption tokens. A 503 answer re-requests
// the same page after a fixed delay. Any other transport fault or an
// unparseable page logs, marks the run exhausted and ends the loop; the
// next run resumes from the feed checkpoint. Cancellation is honored at
// page boundaries.
//
// Records are kept only when they have an id, a title and at least one
// URL and are not declared closed access. Accepted records are buffered
// and upserted by id every chunk-size records and once more at the end of
// the stream. The checkpoint advances to the end of the window only when
// the stream was consumed to the end; exhausted and canceled runs keep it.
//
// A per-feed file lock keeps a second process off the same feed.
package harvest
