package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the data directory.
const FileName = "oadoi.db"

// Store provides SQLite-based storage for works, harvested repository
// records, feed checkpoints and the auxiliary lookup tables. Every query is
// an explicit finder keyed by DOI, record id or feed URL.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	-- Works keyed by clean DOI; the response is the canonical JSON answer
	CREATE TABLE IF NOT EXISTS works (
		doi TEXT PRIMARY KEY,
		record TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		normalized_title TEXT NOT NULL DEFAULT '',
		published_date TEXT NOT NULL DEFAULT '',
		scrape_evidence TEXT NOT NULL DEFAULT '',
		scrape_pdf_url TEXT NOT NULL DEFAULT '',
		scrape_metadata_url TEXT NOT NULL DEFAULT '',
		scrape_license TEXT NOT NULL DEFAULT '',
		scrape_updated TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		response_is_oa INTEGER NOT NULL DEFAULT 0,
		best_url TEXT NOT NULL DEFAULT '',
		best_evidence TEXT NOT NULL DEFAULT '',
		best_host TEXT NOT NULL DEFAULT '',
		best_version TEXT NOT NULL DEFAULT '',
		best_repo_id TEXT NOT NULL DEFAULT '',
		last_changed TEXT NOT NULL DEFAULT '',
		updated TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		invalid INTEGER NOT NULL DEFAULT 0,
		rand REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_works_rand ON works(rand);
	CREATE INDEX IF NOT EXISTS idx_works_updated ON works(updated);

	-- Records harvested from OAI-PMH feeds, keyed by OAI identifier
	CREATE TABLE IF NOT EXISTS repository_records (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		normalized_title TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '[]',
		declared_oa TEXT NOT NULL DEFAULT '',
		license TEXT NOT NULL DEFAULT '',
		urls TEXT NOT NULL DEFAULT '[]',
		relations TEXT NOT NULL DEFAULT '[]',
		sources TEXT NOT NULL DEFAULT '[]',
		doi TEXT NOT NULL DEFAULT '',
		feed_url TEXT NOT NULL DEFAULT '',
		repository_id TEXT NOT NULL DEFAULT '',
		record_timestamp TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '',
		scrape_updated TEXT NOT NULL DEFAULT '',
		scrape_pdf_url TEXT NOT NULL DEFAULT '',
		scrape_metadata_url TEXT NOT NULL DEFAULT '',
		scrape_license TEXT NOT NULL DEFAULT '',
		scrape_version TEXT NOT NULL DEFAULT '',
		match_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_records_doi ON repository_records(doi);
	CREATE INDEX IF NOT EXISTS idx_records_title ON repository_records(normalized_title);
	CREATE INDEX IF NOT EXISTS idx_records_feed ON repository_records(feed_url);

	-- Feed sources and their harvest checkpoints
	CREATE TABLE IF NOT EXISTS feed_sources (
		url TEXT PRIMARY KEY,
		last_harvest_started TEXT NOT NULL DEFAULT '',
		last_harvest_finished TEXT NOT NULL DEFAULT '',
		last_harvested_through TEXT NOT NULL DEFAULT ''
	);

	-- PubMed Central copies of works
	CREATE TABLE IF NOT EXISTS pmc_links (
		doi TEXT NOT NULL,
		pmcid TEXT NOT NULL,
		release_status TEXT NOT NULL DEFAULT '',
		has_published_version INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (doi, pmcid)
	);

	-- URLs reported as violating their publisher's terms
	CREATE TABLE IF NOT EXISTS noncompliant_urls (
		doi TEXT NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (doi, url)
	);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// rowScanner is the subset of *sql.Row and *sql.Rows used by the scanners.
type rowScanner interface {
	Scan(dest ...any) error
}

// query runs a squirrel select and returns its rows.
func (s *Store) query(ctx context.Context, b sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

// exec runs any squirrel builder that is not a select.
func (s *Store) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build statement: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// timestampFormats lists formats that SQLite or older rows may hold.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp returns the zero time when nothing matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// formatTimestamp stores the zero time as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
