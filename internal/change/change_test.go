package change

import (
	"encoding/json"
	"testing"

	"github.com/nao1215/oadoi/internal/model"
)

func baseResponse() *model.Response {
	return &model.Response{
		DOI:          "10.1/x",
		DOIURL:       "https://doi.org/10.1/x",
		IsOA:         true,
		DataStandard: 2,
		Updated:      "2024-01-01T00:00:00",
		Genre:        "journal-article",
		BestOALocation: &model.LocationResponse{
			URL:      "https://p.org/x.pdf",
			Evidence: model.EvidenceRegistry,
			Updated:  "2024-01-01T00:00:00.000000",
		},
		OALocations: []model.LocationResponse{{
			URL:      "https://p.org/x.pdf",
			Evidence: model.EvidenceRegistry,
			Updated:  "2024-01-01T00:00:00.000000",
		}},
		ReportedNoncompliantCopies: []string{},
	}
}

func TestHasChanged(t *testing.T) {
	t.Parallel()

	d := New()

	t.Run("no previous response", func(t *testing.T) {
		t.Parallel()
		if !d.HasChanged("journal-article", baseResponse(), nil) {
			t.Error("missing previous response should count as a change")
		}
		var prev *model.Response
		if !d.HasChanged("journal-article", baseResponse(), prev) {
			t.Error("nil previous response should count as a change")
		}
	})

	t.Run("identical", func(t *testing.T) {
		t.Parallel()
		if d.HasChanged("journal-article", baseResponse(), baseResponse()) {
			t.Error("identical responses should not change")
		}
	})

	t.Run("only volatile fields differ", func(t *testing.T) {
		t.Parallel()

		prev := baseResponse()
		next := baseResponse()
		next.Updated = "2025-05-05T00:00:00"
		next.LastChangedDate = "2025-05-05T00:00:00"
		next.DataStandard = 1
		next.Error = "pmc_lookup: timeout"
		next.ReportedNoncompliantCopies = []string{"https://bad.example/"}
		next.BestOALocation.Updated = "2025-05-05T00:00:00.000000"
		next.OALocations[0].Updated = "2025-05-05T00:00:00.000000"

		if d.HasChanged("journal-article", next, prev) {
			t.Error("volatile differences should not count as a change")
		}
	})

	t.Run("material difference", func(t *testing.T) {
		t.Parallel()

		next := baseResponse()
		next.BestOALocation.URL = "https://other.org/x.pdf"
		if !d.HasChanged("journal-article", next, baseResponse()) {
			t.Error("a different best url should count as a change")
		}
	})

	t.Run("components never change", func(t *testing.T) {
		t.Parallel()

		next := baseResponse()
		next.IsOA = false
		if d.HasChanged(model.GenreComponent, next, baseResponse()) {
			t.Error("components should never signal a change")
		}
	})

	t.Run("raw previous response", func(t *testing.T) {
		t.Parallel()

		raw, err := json.MarshalIndent(baseResponse(), "", "  ")
		if err != nil {
			t.Fatal(err)
		}
		if d.HasChanged("journal-article", baseResponse(), json.RawMessage(raw)) {
			t.Error("stored JSON of the same response should not change")
		}
	})

	t.Run("empty lists are ignored", func(t *testing.T) {
		t.Parallel()

		prev := baseResponse()
		prev.Authors = []any{}
		next := baseResponse()
		next.Authors = nil
		if d.HasChanged("journal-article", next, prev) {
			t.Error("empty list and null should compare equal")
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	d := New()
	a, err := d.Fingerprint(baseResponse())
	if err != nil {
		t.Fatalf("Fingerprint() error: %v", err)
	}
	next := baseResponse()
	next.Updated = "later"
	b, err := d.Fingerprint(next)
	if err != nil {
		t.Fatalf("Fingerprint() error: %v", err)
	}
	if a != b {
		t.Error("volatile fields must not affect the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("expected a 64 character hex digest, got %d", len(a))
	}
}
