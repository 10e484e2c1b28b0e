package database

import "errors"

var (
	// ErrEmptyRecordID is returned when a repository record has no id.
	ErrEmptyRecordID = errors.New("repository record has no id")

	// ErrEmptyFeedURL is returned when a feed source has no URL.
	ErrEmptyFeedURL = errors.New("feed source has no url")
)
