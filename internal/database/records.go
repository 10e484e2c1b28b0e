package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/oadoi/internal/model"
)

var recordColumns = []string{
	"id", "title", "normalized_title", "authors", "declared_oa", "license",
	"urls", "relations", "sources", "doi", "feed_url", "repository_id",
	"record_timestamp", "raw",
	"scrape_updated", "scrape_pdf_url", "scrape_metadata_url", "scrape_license", "scrape_version",
	"match_count", "error",
}

// harvestedUpdate refreshes only what a feed supplies; scrape results and
// match counts survive a re-harvest.
const harvestedUpdate = `ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	normalized_title = excluded.normalized_title,
	authors = excluded.authors,
	declared_oa = excluded.declared_oa,
	license = excluded.license,
	urls = excluded.urls,
	relations = excluded.relations,
	sources = excluded.sources,
	doi = excluded.doi,
	feed_url = excluded.feed_url,
	repository_id = excluded.repository_id,
	record_timestamp = excluded.record_timestamp,
	raw = excluded.raw`

const fullUpdate = harvestedUpdate + `,
	scrape_updated = excluded.scrape_updated,
	scrape_pdf_url = excluded.scrape_pdf_url,
	scrape_metadata_url = excluded.scrape_metadata_url,
	scrape_license = excluded.scrape_license,
	scrape_version = excluded.scrape_version,
	match_count = excluded.match_count,
	error = excluded.error`

// UpsertRecords stores a batch of harvested records in one transaction,
// keyed by record id. Repeating the same batch leaves the table unchanged.
func (s *Store) UpsertRecords(ctx context.Context, records []model.RepositoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		insert, err := recordInsert(rec, harvestedUpdate)
		if err != nil {
			return err
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build statement: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// SaveRecord stores a record including its scrape results.
func (s *Store) SaveRecord(ctx context.Context, rec model.RepositoryRecord) error {
	insert, err := recordInsert(rec, fullUpdate)
	if err != nil {
		return err
	}
	if err := s.exec(ctx, insert); err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
	}
	return nil
}

func recordInsert(rec model.RepositoryRecord, onConflict string) (sq.InsertBuilder, error) {
	if rec.ID == "" {
		return sq.InsertBuilder{}, fmt.Errorf("failed to store record: %w", ErrEmptyRecordID)
	}

	lists := make([]string, 0, 4)
	for _, list := range [][]string{rec.Authors, rec.URLs, rec.Relations, rec.Sources} {
		encoded, err := encodeList(list)
		if err != nil {
			return sq.InsertBuilder{}, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
		lists = append(lists, encoded)
	}

	return sq.Insert("repository_records").
		Columns(recordColumns...).
		Values(
			rec.ID, rec.Title, rec.NormalizedTitle, lists[0], rec.DeclaredOA, rec.License,
			lists[1], lists[2], lists[3], rec.DOI, rec.FeedURL, rec.RepositoryID,
			formatTimestamp(rec.RecordTimestamp), rec.Raw,
			formatTimestamp(rec.ScrapeUpdated), rec.ScrapePDFURL, rec.ScrapeMetadataURL, rec.ScrapeLicense, string(rec.ScrapeVersion),
			rec.MatchCount, rec.Error,
		).
		Suffix(onConflict), nil
}

// GetRecord retrieves a record by id. It returns nil when the id is unknown.
func (s *Store) GetRecord(ctx context.Context, id string) (*model.RepositoryRecord, error) {
	records, err := s.findRecords(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// RecordsByDOI returns the harvested records that carry the DOI.
func (s *Store) RecordsByDOI(ctx context.Context, doi string) ([]model.RepositoryRecord, error) {
	if doi == "" {
		return nil, nil
	}
	return s.findRecords(ctx, sq.Eq{"doi": doi})
}

// RecordsByNormalizedTitle returns the harvested records whose normalized
// title equals the given one.
func (s *Store) RecordsByNormalizedTitle(ctx context.Context, normalizedTitle string) ([]model.RepositoryRecord, error) {
	if normalizedTitle == "" {
		return nil, nil
	}
	return s.findRecords(ctx, sq.Eq{"normalized_title": normalizedTitle})
}

// CountRecords returns the number of records harvested from a feed, or
// from all feeds when feedURL is empty.
func (s *Store) CountRecords(ctx context.Context, feedURL string) (int, error) {
	b := sq.Select("COUNT(*)").From("repository_records")
	if feedURL != "" {
		b = b.Where(sq.Eq{"feed_url": feedURL})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (s *Store) findRecords(ctx context.Context, where sq.Sqlizer) ([]model.RepositoryRecord, error) {
	rows, err := s.query(ctx, sq.Select(recordColumns...).From("repository_records").Where(where).OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []model.RepositoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(row rowScanner) (model.RepositoryRecord, error) {
	var (
		rec                               model.RepositoryRecord
		authors, urls, relations, sources string
		recordTimestamp, scrapeUpdated    string
		scrapeVersion                     string
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.NormalizedTitle, &authors, &rec.DeclaredOA, &rec.License,
		&urls, &relations, &sources, &rec.DOI, &rec.FeedURL, &rec.RepositoryID,
		&recordTimestamp, &rec.Raw,
		&scrapeUpdated, &rec.ScrapePDFURL, &rec.ScrapeMetadataURL, &rec.ScrapeLicense, &scrapeVersion,
		&rec.MatchCount, &rec.Error,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	for _, field := range []struct {
		raw  string
		dest *[]string
	}{
		{authors, &rec.Authors},
		{urls, &rec.URLs},
		{relations, &rec.Relations},
		{sources, &rec.Sources},
	} {
		list, err := decodeList(field.raw)
		if err != nil {
			return rec, fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
		}
		*field.dest = list
	}

	rec.RecordTimestamp = parseTimestamp(recordTimestamp)
	rec.ScrapeUpdated = parseTimestamp(scrapeUpdated)
	rec.ScrapeVersion = model.Version(scrapeVersion)
	return rec, nil
}
