package config

import "github.com/nao1215/oadoi/internal/harvest"

// FeedConfig holds the harvest settings of one OAI-PMH feed.
type FeedConfig struct {
	// URL is the feed endpoint.
	URL string `yaml:"url"`

	// MetadataPrefix is the OAI-PMH metadata format. When empty, base_dc is
	// used for the BASE feed and oai_dc for every other feed.
	MetadataPrefix string `yaml:"metadata_prefix,omitempty"`

	// RepositoryID labels records that name no collection. Defaults to the
	// feed host.
	RepositoryID string `yaml:"repository_id,omitempty"`

	// UseProxy routes the feed through the fixed egress proxy. Feeds known
	// to require it always use it.
	UseProxy *bool `yaml:"use_proxy,omitempty"`

	// ChunkSize overrides the global commit size for this feed.
	ChunkSize int `yaml:"chunk_size,omitempty"`
}

// MatchConfig tunes the repository match filter. Zero values keep the
// defaults.
type MatchConfig struct {
	MinTitleLength   int      `yaml:"min_title_length,omitempty"`
	MaxPerRepository int      `yaml:"max_per_repository,omitempty"`
	CommonTitles     []string `yaml:"common_titles,omitempty"`
}

// File represents the structure of the .oadoi configuration file.
type File struct {
	// Feeds lists the known OAI-PMH feeds.
	Feeds []FeedConfig `yaml:"feeds,omitempty"`

	// Defaults holds feed settings applied to every feed unless the feed
	// overrides them.
	Defaults FeedConfig `yaml:"defaults,omitempty"`

	// Heuristics is the path of a heuristics lists file replacing the
	// embedded lists.
	Heuristics string `yaml:"heuristics,omitempty"`

	// Overrides is the path of the manual override table.
	Overrides string `yaml:"overrides,omitempty"`

	Match MatchConfig `yaml:"match,omitempty"`

	// ScrapeDenylist lists repository endpoints never scraped on demand.
	// When empty, the built-in list is used.
	ScrapeDenylist []string `yaml:"scrape_denylist,omitempty"`

	// Noncompliant lists URL fragments excluded for every work.
	Noncompliant []string `yaml:"noncompliant,omitempty"`
}

// Validate checks the values that have no safe interpretation.
func (f *File) Validate() error {
	if f.Match.MinTitleLength < 0 || f.Match.MaxPerRepository < 0 {
		return ErrInvalidThreshold
	}
	if f.Defaults.ChunkSize < 0 {
		return ErrInvalidChunkSize
	}
	for _, feed := range f.Feeds {
		if feed.ChunkSize < 0 {
			return ErrInvalidChunkSize
		}
	}
	return nil
}

// GetFeedConfig returns the configuration of the feed at feedURL merged
// with the defaults. Unknown feeds get the defaults.
func (f *File) GetFeedConfig(feedURL string) FeedConfig {
	result := f.Defaults
	result.URL = feedURL

	for _, feed := range f.Feeds {
		if feed.URL != feedURL {
			continue
		}
		if feed.MetadataPrefix != "" {
			result.MetadataPrefix = feed.MetadataPrefix
		}
		if feed.RepositoryID != "" {
			result.RepositoryID = feed.RepositoryID
		}
		if feed.UseProxy != nil {
			result.UseProxy = feed.UseProxy
		}
		if feed.ChunkSize != 0 {
			result.ChunkSize = feed.ChunkSize
		}
		break
	}
	return result
}

// Job turns the feed configuration into a harvest job. chunkSize is used
// when the feed sets none. Unset fields keep the harvester defaults.
func (fc FeedConfig) Job(chunkSize int) harvest.Job {
	job := harvest.Job{
		FeedURL:        fc.URL,
		MetadataPrefix: fc.MetadataPrefix,
		RepositoryID:   fc.RepositoryID,
		ChunkSize:      chunkSize,
	}
	if fc.ChunkSize > 0 {
		job.ChunkSize = fc.ChunkSize
	}
	if fc.UseProxy != nil {
		job.UseProxy = *fc.UseProxy
	}
	return job
}

// FeedURLs returns the configured feed URLs in file order.
func (f *File) FeedURLs() []string {
	urls := make([]string, 0, len(f.Feeds))
	for _, feed := range f.Feeds {
		urls = append(urls, feed.URL)
	}
	return urls
}
