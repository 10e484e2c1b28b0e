package resolve

import "errors"

var (
	// ErrNoPageScraper is returned by RefreshHybridScrape when the engine
	// was built without a landing-page scraper.
	ErrNoPageScraper = errors.New("no page scraper configured")

	// ErrWorkNotFound is recorded for batch units whose DOI is unknown.
	ErrWorkNotFound = errors.New("work not found")
)
