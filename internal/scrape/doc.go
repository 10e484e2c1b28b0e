// Package scrape fetches publisher and repository landing pages and looks
// for evidence of a free copy: a linked PDF, an open license, or an
// "open access" statement.
//
// A page is read through a Session, which owns the HTTP response and must
// be closed. Scraper.Scrape and Scraper.ScrapeRecord open and close the
// session for the caller.
package scrape
