// Package config provides the configuration of oadoi: command-line
// defaults, the optional YAML configuration file with feed definitions and
// classifier tuning, and the manual override table.
package config
