package scrape

import "errors"

var (
	// ErrParse is returned when a page cannot be parsed.
	ErrParse = errors.New("failed to parse page")

	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrNoURL is returned when a record has no URL to scrape.
	ErrNoURL = errors.New("record has no landing page url")

	// ErrSessionClosed is returned when a closed session is read.
	ErrSessionClosed = errors.New("session is closed")
)
