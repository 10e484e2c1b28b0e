package model

import "testing"

func TestParseVersion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected Version
	}{
		{"publishedVersion", VersionPublished},
		{"vor", VersionPublished},
		{"acceptedVersion", VersionAccepted},
		{"AM", VersionAccepted},
		{"submittedVersion", VersionSubmitted},
		{"preprint", VersionSubmitted},
		{"draft", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			if got := ParseVersion(tc.input); got != tc.expected {
				t.Errorf("ParseVersion(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

// TestRankOrdering checks the precedence used by the consolidator.
func TestRankOrdering(t *testing.T) {
	t.Parallel()

	t.Run("versions", func(t *testing.T) {
		t.Parallel()
		ordered := []Version{VersionPublished, VersionAccepted, VersionSubmitted, ""}
		for i := 1; i < len(ordered); i++ {
			if ordered[i-1].Rank() >= ordered[i].Rank() {
				t.Errorf("%q should rank before %q", ordered[i-1], ordered[i])
			}
		}
	})

	t.Run("colors", func(t *testing.T) {
		t.Parallel()
		if ColorGold.Rank() != ColorDiamond.Rank() {
			t.Error("gold and diamond should share a rank")
		}
		ordered := []OAColor{ColorGold, ColorHybrid, ColorBronze, ColorGreen, ColorClosed}
		for i := 1; i < len(ordered); i++ {
			if ordered[i-1].Rank() >= ordered[i].Rank() {
				t.Errorf("%q should rank before %q", ordered[i-1], ordered[i])
			}
		}
	})
}

func TestLocationOAColor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		location Location
		expected OAColor
	}{
		{
			name:     "explicit color wins",
			location: Location{MetadataURL: "https://x", Evidence: EvidenceManual, Color: ColorDiamond},
			expected: ColorDiamond,
		},
		{
			name:     "no url is closed",
			location: Location{Evidence: EvidenceRegistry},
			expected: ColorClosed,
		},
		{
			name:     "oa journal is gold",
			location: Location{PDFURL: "https://x.pdf", Evidence: EvidenceRegistry},
			expected: ColorGold,
		},
		{
			name:     "repository evidence is green",
			location: Location{PDFURL: "https://x.pdf", Evidence: EvidenceTitleMatch},
			expected: ColorGreen,
		},
		{
			name:     "repository host is green",
			location: Location{PDFURL: "https://x.pdf", Evidence: EvidenceManual, Host: HostRepository},
			expected: ColorGreen,
		},
		{
			name:     "licensed publisher copy is hybrid",
			location: Location{PDFURL: "https://x.pdf", Evidence: "open (via page says license)", License: "cc-by"},
			expected: ColorHybrid,
		},
		{
			name:     "crossref license evidence is hybrid",
			location: Location{PDFURL: "https://x.pdf", Evidence: EvidenceLicense},
			expected: ColorHybrid,
		},
		{
			name:     "unlicensed publisher copy is bronze",
			location: Location{MetadataURL: "https://x", Evidence: "open (via free pdf)", License: LicenseUnknown},
			expected: ColorBronze,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.location.OAColor(); got != tc.expected {
				t.Errorf("OAColor() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestLocationBestURL(t *testing.T) {
	t.Parallel()

	l := Location{PDFURL: "https://x/a.pdf", MetadataURL: "https://x/a"}
	if l.BestURL() != "https://x/a.pdf" || !l.BestURLIsPDF() {
		t.Errorf("BestURL() = %q, want pdf", l.BestURL())
	}

	l.PDFURL = ""
	if l.BestURL() != "https://x/a" || l.BestURLIsPDF() {
		t.Errorf("BestURL() = %q, want landing page", l.BestURL())
	}
}

func TestErrorLog(t *testing.T) {
	t.Parallel()

	var log ErrorLog
	if !log.Empty() {
		t.Fatal("new log should be empty")
	}
	log.Append("timeout")
	log.Append("   ")
	log.Append("reset")

	if got := log.String(); got != "timeout; reset" {
		t.Errorf("String() = %q", got)
	}

	entries := log.Entries()
	entries[0] = "mutated"
	if log.Entries()[0] != "timeout" {
		t.Error("Entries() must return a copy")
	}

	log.Reset()
	if !log.Empty() {
		t.Error("Reset() should clear the log")
	}
}
