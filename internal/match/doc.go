// Package match quality-gates harvested repository records before they can
// become OA evidence for a work.
//
// DOI matches are authoritative and always kept. Title matches must have a
// distinctive title and, when authors are known on both sides, agree on the
// first or last author surname. A repository that claims too many title
// matches for one work is treated as spam and all title matches for that
// work are dropped.
package match
