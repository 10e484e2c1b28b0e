package harvest

import "errors"

var (
	// ErrServiceUnavailable is returned when a feed keeps answering 503
	// after every retry.
	ErrServiceUnavailable = errors.New("feed service unavailable")

	// ErrHTTPStatus is returned for any other non-2xx answer.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrMalformedResponse is returned when a page is not valid OAI-PMH XML.
	ErrMalformedResponse = errors.New("malformed oai-pmh response")

	// ErrOAI is returned when the feed answers with an OAI-PMH error element.
	ErrOAI = errors.New("oai-pmh error")

	// ErrIncompleteRecord marks a harvested record that lacks an id, a
	// title or a URL. Such records are skipped.
	ErrIncompleteRecord = errors.New("incomplete record")

	// ErrClosedRecord marks a record whose feed declares it closed access.
	ErrClosedRecord = errors.New("record declared closed access")

	// ErrFeedLocked is returned when another harvester holds the feed lock.
	ErrFeedLocked = errors.New("feed is being harvested by another process")

	// ErrInvalidProxy is returned for proxy URLs with an unsupported scheme.
	ErrInvalidProxy = errors.New("invalid proxy url")

	// ErrNoSink is returned when a harvester has nowhere to store records.
	ErrNoSink = errors.New("harvester has no record store")
)
