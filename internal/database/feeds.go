package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/oadoi/internal/model"
)

var feedColumns = []string{"url", "last_harvest_started", "last_harvest_finished", "last_harvested_through"}

// SaveFeedSource inserts or updates a feed source and its checkpoint.
func (s *Store) SaveFeedSource(ctx context.Context, feed model.FeedSource) error {
	if feed.URL == "" {
		return fmt.Errorf("failed to save feed source: %w", ErrEmptyFeedURL)
	}
	upsert := sq.Insert("feed_sources").
		Columns(feedColumns...).
		Values(
			feed.URL,
			formatTimestamp(feed.LastHarvestStarted),
			formatTimestamp(feed.LastHarvestFinished),
			formatTimestamp(feed.LastHarvestedThrough),
		).
		Suffix(`ON CONFLICT(url) DO UPDATE SET
			last_harvest_started = excluded.last_harvest_started,
			last_harvest_finished = excluded.last_harvest_finished,
			last_harvested_through = excluded.last_harvested_through`)
	if err := s.exec(ctx, upsert); err != nil {
		return fmt.Errorf("failed to save feed source %s: %w", feed.URL, err)
	}
	return nil
}

// GetFeedSource retrieves a feed source by URL. It returns nil when the
// feed has never been harvested.
func (s *Store) GetFeedSource(ctx context.Context, url string) (*model.FeedSource, error) {
	feeds, err := s.findFeeds(ctx, sq.Select(feedColumns...).From("feed_sources").Where(sq.Eq{"url": url}))
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, nil
	}
	return &feeds[0], nil
}

// ListFeedSources returns every known feed source ordered by URL.
func (s *Store) ListFeedSources(ctx context.Context) ([]model.FeedSource, error) {
	return s.findFeeds(ctx, sq.Select(feedColumns...).From("feed_sources").OrderBy("url"))
}

func (s *Store) findFeeds(ctx context.Context, b sq.SelectBuilder) ([]model.FeedSource, error) {
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed sources: %w", err)
	}
	defer rows.Close()

	var feeds []model.FeedSource
	for rows.Next() {
		var feed model.FeedSource
		var started, finished, through string
		if err := rows.Scan(&feed.URL, &started, &finished, &through); err != nil {
			return nil, fmt.Errorf("failed to scan feed source: %w", err)
		}
		feed.LastHarvestStarted = parseTimestamp(started)
		feed.LastHarvestFinished = parseTimestamp(finished)
		feed.LastHarvestedThrough = parseTimestamp(through)
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}
