package change

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/oadoi/internal/model"
)

// VolatileKeys are removed at every depth before comparison.
var VolatileKeys = []string{
	"updated",
	"last_changed_date",
	"x_reported_noncompliant_copies",
	"x_error",
	"data_standard",
	"algorithm_version",
}

// Detector compares canonical responses.
type Detector struct {
	volatile map[string]struct{}
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithVolatileKeys replaces the keys ignored by the comparison.
func WithVolatileKeys(keys []string) Option {
	return func(d *Detector) {
		d.volatile = toSet(keys)
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{volatile: toSet(VolatileKeys)}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// HasChanged reports whether next differs materially from prev. prev may
// be a decoded value or raw JSON; a nil or empty prev always counts as a
// change. Components never change.
func (d *Detector) HasChanged(genre string, next, prev any) bool {
	if genre == model.GenreComponent {
		return false
	}
	if isAbsent(prev) {
		d.logger.Debug("response changed: no previous response")
		return true
	}

	a, err := d.Canonical(next)
	if err != nil {
		d.logger.Warn("failed to canonicalize new response", "error", err)
		return true
	}
	b, err := d.Canonical(prev)
	if err != nil {
		d.logger.Warn("failed to canonicalize previous response", "error", err)
		return true
	}
	return !bytes.Equal(a, b)
}

func isAbsent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *model.Response:
		return val == nil
	case json.RawMessage:
		return len(bytes.TrimSpace(val)) == 0 || string(bytes.TrimSpace(val)) == "null"
	case []byte:
		return len(bytes.TrimSpace(val)) == 0 || string(bytes.TrimSpace(val)) == "null"
	}
	return false
}

// Canonical returns the stripped JSON form of v with sorted keys.
func (d *Detector) Canonical(v any) ([]byte, error) {
	var raw []byte
	switch val := v.(type) {
	case []byte:
		raw = val
	case json.RawMessage:
		raw = val
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to encode response: %w", err)
		}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(d.strip(decoded))
}

func (d *Detector) strip(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if _, ok := d.volatile[k]; ok {
				continue
			}
			if child == nil {
				continue
			}
			if list, ok := child.([]any); ok && len(list) == 0 {
				continue
			}
			out[k] = d.strip(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = d.strip(child)
		}
		return out
	}
	return v
}

// Fingerprint returns a SHA3-256 digest of the canonical form of v.
func (d *Detector) Fingerprint(v any) (string, error) {
	canonical, err := d.Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
