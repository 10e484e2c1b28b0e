package model

import (
	"errors"
	"fmt"
	"net/url"
)

// Override validation errors.
var (
	ErrOverrideNoDOI       = errors.New("override: doi is required")
	ErrOverrideEmpty       = errors.New("override: open override needs a pdf_url or metadata_url")
	ErrOverrideClosedURL   = errors.New("override: closed override must not carry urls")
	ErrOverrideBadURL      = errors.New("override: url must be absolute http(s)")
	ErrOverrideBadVersion  = errors.New("override: unknown version")
	ErrOverrideBadColor    = errors.New("override: unknown oa_color")
	ErrOverrideBadHostType = errors.New("override: unknown host_type")
)

// Override is a curated, authoritative answer for one DOI. Only the fields
// below are recognised; when present it replaces every collected candidate.
type Override struct {
	DOI         string `yaml:"doi" json:"doi"`
	Closed      bool   `yaml:"closed" json:"closed"`
	PDFURL      string `yaml:"pdf_url" json:"pdf_url,omitempty"`
	MetadataURL string `yaml:"metadata_url" json:"metadata_url,omitempty"`
	License     string `yaml:"license" json:"license,omitempty"`
	Version     string `yaml:"version" json:"version,omitempty"`
	Evidence    string `yaml:"evidence" json:"evidence,omitempty"`
	OAColor     string `yaml:"oa_color" json:"oa_color,omitempty"`
	HostType    string `yaml:"host_type" json:"host_type,omitempty"`
	Note        string `yaml:"note" json:"note,omitempty"`
}

// Validate checks the override and cleans its DOI in place.
func (o *Override) Validate() error {
	doi, err := CleanDOI(o.DOI)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrOverrideNoDOI, o.DOI)
	}
	o.DOI = doi

	if o.Closed {
		if o.PDFURL != "" || o.MetadataURL != "" {
			return ErrOverrideClosedURL
		}
		return nil
	}

	if o.PDFURL == "" && o.MetadataURL == "" {
		return ErrOverrideEmpty
	}
	for _, raw := range []string{o.PDFURL, o.MetadataURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrOverrideBadURL, raw)
		}
	}
	if o.Version != "" && ParseVersion(o.Version) == "" {
		return fmt.Errorf("%w: %q", ErrOverrideBadVersion, o.Version)
	}
	switch OAColor(o.OAColor) {
	case "", ColorGold, ColorDiamond, ColorHybrid, ColorBronze, ColorGreen:
	default:
		return fmt.Errorf("%w: %q", ErrOverrideBadColor, o.OAColor)
	}
	switch HostType(o.HostType) {
	case "", HostPublisher, HostRepository:
	default:
		return fmt.Errorf("%w: %q", ErrOverrideBadHostType, o.HostType)
	}
	return nil
}

// Location builds the single authoritative candidate for an open override.
// It returns false for closed overrides.
func (o Override) Location() (Location, bool) {
	if o.Closed {
		return Location{}, false
	}
	evidence := o.Evidence
	if evidence == "" {
		evidence = EvidenceManual
	}
	return Location{
		DOI:         o.DOI,
		PDFURL:      o.PDFURL,
		MetadataURL: o.MetadataURL,
		License:     o.License,
		Version:     ParseVersion(o.Version),
		Evidence:    evidence,
		Color:       OAColor(o.OAColor),
		Host:        HostType(o.HostType),
	}, true
}
