// Package model defines the data shared by the resolution engine and the
// feed harvester.
//
// The main types are:
//   - Work: a scholarly work keyed by its clean DOI
//   - Location: one candidate OA location produced by a probe
//   - RepositoryRecord: an item harvested from an OAI-PMH feed
//   - FeedSource: a feed endpoint with its harvest checkpoint
//   - Override: a curated answer that replaces all collected evidence
//   - Response: the canonical public answer, plus its legacy and flat shapes
package model
