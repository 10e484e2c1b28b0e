// Package change decides whether the canonical response of a work
// materially changed since the previous pass.
//
// Responses are compared in a canonical JSON form with sorted keys, after
// removing volatile fields (timestamps, noncompliance annotations, data
// standard and algorithm versions), every empty list and every null. A nil
// slice and an empty one therefore compare equal.
package change
