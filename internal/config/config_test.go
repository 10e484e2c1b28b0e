package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/oadoi/internal/harvest"
	"github.com/nao1215/oadoi/internal/model"
)

// TestNewConfig documents the defaults; a failing case means a default
// changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout to be 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default HarvestTimeout is 120 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.HarvestTimeout != 120*time.Second {
			t.Errorf("expected HarvestTimeout to be 120s, got %v", cfg.HarvestTimeout)
		}
	})

	t.Run("default BatchSize is 10", func(t *testing.T) {
		t.Parallel()
		if cfg.BatchSize != 10 {
			t.Errorf("expected BatchSize to be 10, got %d", cfg.BatchSize)
		}
	})

	t.Run("default ChunkSize is 100", func(t *testing.T) {
		t.Parallel()
		if cfg.ChunkSize != 100 {
			t.Errorf("expected ChunkSize to be 100, got %d", cfg.ChunkSize)
		}
	})

	t.Run("green scrape is enabled", func(t *testing.T) {
		t.Parallel()
		if !cfg.GreenScrape || cfg.Hybrid {
			t.Errorf("expected GreenScrape on and Hybrid off, got %v/%v", cfg.GreenScrape, cfg.Hybrid)
		}
	})

	t.Run("database lives in the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir to be %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("file is never nil", func(t *testing.T) {
		t.Parallel()
		if cfg.File == nil {
			t.Error("expected File to be set")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, want: nil},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative harvest timeout", mutate: func(c *Config) { c.HarvestTimeout = -time.Second }, want: ErrInvalidTimeout},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, want: ErrInvalidBatchSize},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, want: ErrInvalidChunkSize},
		{name: "negative body size", mutate: func(c *Config) { c.MaxBodySize = -1 }, want: ErrInvalidMaxBodySize},
		{name: "json and csv", mutate: func(c *Config) { c.JSONReport, c.CSVReport = true, true }, want: ErrConflictingReportFormats},
		{name: "json and markdown", mutate: func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, want: ErrConflictingReportFormats},
		{name: "single format", mutate: func(c *Config) { c.MarkdownReport = true }, want: nil},
		{name: "negative threshold", mutate: func(c *Config) { c.File.Match.MinTitleLength = -1 }, want: ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("targets are required for resolve", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		if err := cfg.ValidateTargets(); !errors.Is(err, ErrNoTarget) {
			t.Errorf("ValidateTargets() error = %v, want ErrNoTarget", err)
		}
		cfg.Targets = []string{"10.1/a"}
		if err := cfg.ValidateTargets(); err != nil {
			t.Errorf("ValidateTargets() error = %v", err)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(harvest.ProxyEnv, "socks5://127.0.0.1:1080")

	cfg := NewConfig()
	cfg.LoadEnv()
	if cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("ProxyURL = %q", cfg.ProxyURL)
	}

	cfg.ProxyURL = "http://flag.example:3128"
	cfg.LoadEnv()
	if cfg.ProxyURL != "http://flag.example:3128" {
		t.Errorf("LoadEnv overwrote ProxyURL: %q", cfg.ProxyURL)
	}
}

const sampleConfig = `
defaults:
  chunk_size: 50
feeds:
  - url: https://export.arxiv.org/oai2
    repository_id: arXiv
  - url: http://oai.base-search.net/oai
    use_proxy: true
    chunk_size: 500
heuristics: /etc/oadoi/heuristics.yaml
overrides: /etc/oadoi/overrides.yaml
match:
  min_title_length: 20
  max_per_repository: 5
scrape_denylist:
  - open-archive.highwire.org/handler
noncompliant:
  - academia.edu
`

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("full file", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile(write(t, sampleConfig))
		if err != nil {
			t.Fatalf("LoadConfigFile() error: %v", err)
		}
		if diff := cmp.Diff([]string{"https://export.arxiv.org/oai2", "http://oai.base-search.net/oai"}, cf.FeedURLs()); diff != "" {
			t.Errorf("feeds mismatch (-want +got):\n%s", diff)
		}
		if cf.Heuristics != "/etc/oadoi/heuristics.yaml" || cf.Overrides != "/etc/oadoi/overrides.yaml" {
			t.Errorf("paths = %q/%q", cf.Heuristics, cf.Overrides)
		}
		if cf.Match.MinTitleLength != 20 || cf.Match.MaxPerRepository != 5 {
			t.Errorf("Match = %+v", cf.Match)
		}
		if diff := cmp.Diff([]string{"academia.edu"}, cf.Noncompliant); diff != "" {
			t.Errorf("noncompliant mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile(write(t, ""))
		if err != nil {
			t.Fatalf("LoadConfigFile() error: %v", err)
		}
		if len(cf.Feeds) != 0 {
			t.Errorf("Feeds = %v", cf.Feeds)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(write(t, "feedz: []\n")); err == nil {
			t.Error("expected an error for an unknown key")
		}
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(write(t, "match:\n  max_per_repository: -1\n"))
		if !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("LoadConfigFile() error = %v, want ErrInvalidThreshold", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("LoadConfigFile() error = %v, want ErrConfigNotFound", err)
		}
	})
}

func TestGetFeedConfig(t *testing.T) {
	t.Parallel()

	cf, err := LoadConfigFile(func() string {
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}())
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}

	t.Run("known feed overrides defaults", func(t *testing.T) {
		t.Parallel()

		job := cf.GetFeedConfig("http://oai.base-search.net/oai").Job(100)
		if job.ChunkSize != 500 || !job.UseProxy {
			t.Errorf("job = %+v", job)
		}
	})

	t.Run("defaults apply", func(t *testing.T) {
		t.Parallel()

		job := cf.GetFeedConfig("https://export.arxiv.org/oai2").Job(100)
		want := harvest.Job{
			FeedURL:      "https://export.arxiv.org/oai2",
			RepositoryID: "arXiv",
			ChunkSize:    50,
		}
		if diff := cmp.Diff(want, job); diff != "" {
			t.Errorf("job mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown feed gets the global chunk size", func(t *testing.T) {
		t.Parallel()

		empty := &File{}
		job := empty.GetFeedConfig("https://repo.example/oai").Job(100)
		if job.FeedURL != "https://repo.example/oai" || job.ChunkSize != 100 || job.UseProxy {
			t.Errorf("job = %+v", job)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("FindConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("missing explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("FindConfigFile() = %q, want empty", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"state":  XDGStateDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end with %q", name, dir, AppName)
		}
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	t.Run("parse and look up", func(t *testing.T) {
		t.Parallel()

		table, err := ParseOverrides([]byte(`
overrides:
  - doi: https://doi.org/10.1/OPEN
    pdf_url: https://pub.example/open.pdf
    version: publishedVersion
    oa_color: gold
  - doi: 10.1/closed
    closed: true
`))
		if err != nil {
			t.Fatalf("ParseOverrides() error: %v", err)
		}
		if table.Len() != 2 {
			t.Errorf("Len() = %d", table.Len())
		}

		o, ok := table.Override("10.1/open")
		if !ok || o.PDFURL != "https://pub.example/open.pdf" {
			t.Errorf("Override(10.1/open) = %+v, %v", o, ok)
		}
		if _, ok := table.Override("DOI:10.1/Closed"); !ok {
			t.Error("lookup must clean the DOI")
		}
		if _, ok := table.Override("10.1/none"); ok {
			t.Error("unexpected override")
		}
	})

	t.Run("invalid entry", func(t *testing.T) {
		t.Parallel()

		_, err := ParseOverrides([]byte("overrides:\n  - doi: 10.1/a\n    closed: true\n    pdf_url: https://x.example/a.pdf\n"))
		if !errors.Is(err, model.ErrOverrideClosedURL) {
			t.Errorf("ParseOverrides() error = %v, want ErrOverrideClosedURL", err)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		_, err := ParseOverrides([]byte("overrides:\n  - doi: 10.1/a\n    is_oa: true\n"))
		if err == nil || !strings.Contains(err.Error(), "is_oa") {
			t.Errorf("ParseOverrides() error = %v, want unknown field", err)
		}
	})

	t.Run("duplicate doi", func(t *testing.T) {
		t.Parallel()

		_, err := NewOverrideTable([]model.Override{
			{DOI: "10.1/a", Closed: true},
			{DOI: "https://doi.org/10.1/A", Closed: true},
		})
		if !errors.Is(err, ErrDuplicateOverride) {
			t.Errorf("NewOverrideTable() error = %v, want ErrDuplicateOverride", err)
		}
	})

	t.Run("nil table", func(t *testing.T) {
		t.Parallel()

		var table *OverrideTable
		if _, ok := table.Override("10.1/a"); ok || table.Len() != 0 {
			t.Error("nil table must be empty")
		}
	})
}
