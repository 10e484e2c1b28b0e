package database

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/oadoi/internal/model"
)

var workColumns = []string{
	"doi", "record", "title", "normalized_title", "published_date",
	"scrape_evidence", "scrape_pdf_url", "scrape_metadata_url", "scrape_license", "scrape_updated",
	"response", "response_is_oa", "best_url", "best_evidence", "best_host", "best_version", "best_repo_id",
	"last_changed", "updated", "error", "invalid", "rand",
}

// SaveWork inserts or replaces a work. The transient location list is
// not persisted.
func (s *Store) SaveWork(ctx context.Context, w *model.Work) error {
	if w == nil || w.DOI == "" {
		return fmt.Errorf("failed to save work: %w", model.ErrInvalidDOI)
	}

	record := ""
	if w.Record != nil {
		data, err := json.Marshal(w.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		record = string(data)
	}

	response := ""
	if w.Response != nil {
		data, err := json.Marshal(w.Response)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		response = string(data)
	}

	upsert := sq.Insert("works").
		Columns(workColumns...).
		Values(
			w.DOI, record, w.Title, w.NormalizedTitle, w.PublishedDate,
			w.Scrape.Evidence, w.Scrape.PDFURL, w.Scrape.MetadataURL, w.Scrape.License, formatTimestamp(w.Scrape.Updated),
			response, boolToInt(w.Summary.IsOA), w.Summary.BestURL, w.Summary.BestEvidence,
			string(w.Summary.BestHost), string(w.Summary.BestVersion), w.Summary.BestRepoID,
			formatTimestamp(w.LastChanged), formatTimestamp(w.Updated), w.Errors.String(), boolToInt(w.Invalid), w.Rand,
		).
		Suffix(`ON CONFLICT(doi) DO UPDATE SET
			record = excluded.record,
			title = excluded.title,
			normalized_title = excluded.normalized_title,
			published_date = excluded.published_date,
			scrape_evidence = excluded.scrape_evidence,
			scrape_pdf_url = excluded.scrape_pdf_url,
			scrape_metadata_url = excluded.scrape_metadata_url,
			scrape_license = excluded.scrape_license,
			scrape_updated = excluded.scrape_updated,
			response = excluded.response,
			response_is_oa = excluded.response_is_oa,
			best_url = excluded.best_url,
			best_evidence = excluded.best_evidence,
			best_host = excluded.best_host,
			best_version = excluded.best_version,
			best_repo_id = excluded.best_repo_id,
			last_changed = excluded.last_changed,
			updated = excluded.updated,
			error = excluded.error,
			invalid = excluded.invalid,
			rand = excluded.rand`)

	if err := s.exec(ctx, upsert); err != nil {
		return fmt.Errorf("failed to save work %s: %w", w.DOI, err)
	}
	return nil
}

// GetWork retrieves a work by clean DOI. It returns nil when the DOI is
// unknown.
func (s *Store) GetWork(ctx context.Context, doi string) (*model.Work, error) {
	rows, err := s.query(ctx, sq.Select(workColumns...).From("works").Where(sq.Eq{"doi": doi}))
	if err != nil {
		return nil, fmt.Errorf("failed to get work: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get work: %w", err)
		}
		return nil, nil
	}
	w, err := scanWork(rows)
	if err != nil {
		return nil, err
	}
	return w, rows.Err()
}

// ListWorksForRefresh returns up to limit works ordered by their random
// jitter so that successive batches spread over the whole table.
func (s *Store) ListWorksForRefresh(ctx context.Context, limit int) ([]*model.Work, error) {
	b := sq.Select(workColumns...).From("works").OrderBy("rand", "doi")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list works: %w", err)
	}
	defer rows.Close()

	var works []*model.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate works: %w", err)
	}
	return works, nil
}

// CountWorks returns the number of stored works.
func (s *Store) CountWorks(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM works").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count works: %w", err)
	}
	return count, nil
}

func scanWork(row rowScanner) (*model.Work, error) {
	var (
		w                                   model.Work
		record, response, errText           string
		scrapeUpdated, lastChanged, updated string
		bestHost, bestVersion               string
		isOA, invalid                       int
	)
	err := row.Scan(
		&w.DOI, &record, &w.Title, &w.NormalizedTitle, &w.PublishedDate,
		&w.Scrape.Evidence, &w.Scrape.PDFURL, &w.Scrape.MetadataURL, &w.Scrape.License, &scrapeUpdated,
		&response, &isOA, &w.Summary.BestURL, &w.Summary.BestEvidence, &bestHost, &bestVersion, &w.Summary.BestRepoID,
		&lastChanged, &updated, &errText, &invalid, &w.Rand,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan work: %w", err)
	}

	if record != "" {
		if err := json.Unmarshal([]byte(record), &w.Record); err != nil {
			return nil, fmt.Errorf("failed to parse record of %s: %w", w.DOI, err)
		}
	}
	if response != "" {
		w.Response = &model.Response{}
		if err := json.Unmarshal([]byte(response), w.Response); err != nil {
			return nil, fmt.Errorf("failed to parse response of %s: %w", w.DOI, err)
		}
	}

	w.Scrape.Updated = parseTimestamp(scrapeUpdated)
	w.Summary.IsOA = isOA != 0
	w.Summary.BestHost = model.HostType(bestHost)
	w.Summary.BestVersion = model.Version(bestVersion)
	w.LastChanged = parseTimestamp(lastChanged)
	w.Updated = parseTimestamp(updated)
	w.Errors.Append(errText)
	w.Invalid = invalid != 0
	return &w, nil
}

// SavePMCLink inserts or updates a PubMed Central link.
func (s *Store) SavePMCLink(ctx context.Context, link model.PMCLink) error {
	upsert := sq.Insert("pmc_links").
		Columns("doi", "pmcid", "release_status", "has_published_version").
		Values(link.DOI, link.PMCID, link.ReleaseStatus, boolToInt(link.HasPublishedVersion)).
		Suffix(`ON CONFLICT(doi, pmcid) DO UPDATE SET
			release_status = excluded.release_status,
			has_published_version = excluded.has_published_version`)
	if err := s.exec(ctx, upsert); err != nil {
		return fmt.Errorf("failed to save pmc link: %w", err)
	}
	return nil
}

// PMCLinks returns the PubMed Central links of a DOI.
func (s *Store) PMCLinks(ctx context.Context, doi string) ([]model.PMCLink, error) {
	rows, err := s.query(ctx, sq.Select("doi", "pmcid", "release_status", "has_published_version").
		From("pmc_links").
		Where(sq.Eq{"doi": doi}).
		OrderBy("pmcid"))
	if err != nil {
		return nil, fmt.Errorf("failed to query pmc links: %w", err)
	}
	defer rows.Close()

	var links []model.PMCLink
	for rows.Next() {
		var link model.PMCLink
		var published int
		if err := rows.Scan(&link.DOI, &link.PMCID, &link.ReleaseStatus, &published); err != nil {
			return nil, fmt.Errorf("failed to scan pmc link: %w", err)
		}
		link.HasPublishedVersion = published != 0
		links = append(links, link)
	}
	return links, rows.Err()
}

// AddNoncompliant records a URL reported as noncompliant for a DOI.
func (s *Store) AddNoncompliant(ctx context.Context, doi, url string) error {
	insert := sq.Insert("noncompliant_urls").
		Columns("doi", "url").
		Values(doi, url).
		Suffix("ON CONFLICT(doi, url) DO NOTHING")
	if err := s.exec(ctx, insert); err != nil {
		return fmt.Errorf("failed to add noncompliant url: %w", err)
	}
	return nil
}

// Noncompliant returns the URLs reported as noncompliant for a DOI.
func (s *Store) Noncompliant(ctx context.Context, doi string) ([]string, error) {
	rows, err := s.query(ctx, sq.Select("url").From("noncompliant_urls").Where(sq.Eq{"doi": doi}).OrderBy("url"))
	if err != nil {
		return nil, fmt.Errorf("failed to query noncompliant urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan noncompliant url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
