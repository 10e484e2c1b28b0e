// Package consolidate turns the candidate locations of a pass into one
// canonical answer.
//
// Candidates on the reported-noncompliant list are dropped, the rest are
// put in a total order (version, then OA color, then scraped before
// declared, then URL), duplicates of a URL keep their best-ranked copy, and
// the first survivor wins.
package consolidate
