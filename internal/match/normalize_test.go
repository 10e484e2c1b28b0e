package match

import "testing"

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"punctuation and case", "Deep Learning: A Survey!", "deeplearningsurvey"},
		{"stop words", "The Origin of Species", "originspecies"},
		{"markup", "Effects of <i>E. coli</i> on growth", "effectsecoligrowth"},
		{"diacritics", "Über die Gödel-Sätze", "uberdiegodelsatze"},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeTitle(tc.input); got != tc.expected {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize("O'Brien-Müller"); got != "obrienmuller" {
		t.Errorf("Normalize() = %q, want obrienmuller", got)
	}
}
