package config

import (
	"fmt"
	"os"

	"github.com/nao1215/oadoi/internal/model"
)

// OverrideTable holds curated answers keyed by clean DOI. It is read-only
// after loading and safe for concurrent use.
type OverrideTable struct {
	byDOI map[string]model.Override
}

type overrideFile struct {
	Overrides []model.Override `yaml:"overrides"`
}

// LoadOverrides reads the override table at path. Every entry is validated;
// the first invalid or duplicate entry fails the whole load.
func LoadOverrides(path string) (*OverrideTable, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides parses an override table from YAML.
func ParseOverrides(data []byte) (*OverrideTable, error) {
	var f overrideFile
	if err := decodeStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse overrides: %w", err)
	}
	return NewOverrideTable(f.Overrides)
}

// NewOverrideTable validates overrides and indexes them by DOI.
func NewOverrideTable(overrides []model.Override) (*OverrideTable, error) {
	t := &OverrideTable{byDOI: make(map[string]model.Override, len(overrides))}
	for i := range overrides {
		o := overrides[i]
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("override %d: %w", i+1, err)
		}
		if _, ok := t.byDOI[o.DOI]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOverride, o.DOI)
		}
		t.byDOI[o.DOI] = o
	}
	return t, nil
}

// Override returns the curated answer for doi.
func (t *OverrideTable) Override(doi string) (model.Override, bool) {
	if t == nil {
		return model.Override{}, false
	}
	if clean, err := model.CleanDOI(doi); err == nil {
		doi = clean
	}
	o, ok := t.byDOI[doi]
	return o, ok
}

// Len returns the number of overrides.
func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byDOI)
}
