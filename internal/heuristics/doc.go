// Package heuristics holds the local, network-free classifiers used by the
// local-lookup probe: OA registry membership, known OA publishers, DOI and
// URL prefix allowlists, and license URL/string normalisation.
//
// The lists are data, not code. A default set is embedded in the binary and
// can be replaced by a YAML file.
package heuristics
