// Package main provides the entry point for the oadoi CLI.
//
// oadoi finds legal open-access copies of scholarly works. It harvests
// OAI-PMH repository feeds into a local store and recalculates, per DOI,
// the best open location and its OA color.
//
// Usage:
//
//	oadoi harvest --url http://export.arxiv.org/oai2 --days 1
//	oadoi import works.jsonl
//	oadoi resolve 10.1234/abc 10.5678/def
//
// See --help for all available options.
package main

func main() {
	Execute()
}
