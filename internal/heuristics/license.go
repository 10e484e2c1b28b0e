package heuristics

import "strings"

// licenseLookups maps fragments of a squashed license string (lower case,
// no spaces or dashes) to a normalized license. Order matters: the more
// specific fragments come first.
var licenseLookups = []struct {
	fragment string
	license  string
}{
	{"koreanjpathol.org/authors/access.php", "cc-by-nc"},

	{"creativecommons.org/licenses/byncnd", "cc-by-nc-nd"},
	{"creativecommonsattributionnoncommercialnoderiv", "cc-by-nc-nd"},
	{"ccbyncnd", "cc-by-nc-nd"},

	{"creativecommons.org/licenses/byncsa", "cc-by-nc-sa"},
	{"creativecommonsattributionnoncommercialsharealike", "cc-by-nc-sa"},
	{"ccbyncsa", "cc-by-nc-sa"},

	{"creativecommons.org/licenses/bynd", "cc-by-nd"},
	{"creativecommonsattributionnoderiv", "cc-by-nd"},
	{"ccbynd", "cc-by-nd"},

	{"creativecommons.org/licenses/bysa", "cc-by-sa"},
	{"creativecommonsattributionsharealike", "cc-by-sa"},
	{"ccbysa", "cc-by-sa"},

	{"creativecommons.org/licenses/bync", "cc-by-nc"},
	{"creativecommonsattributionnoncommercial", "cc-by-nc"},
	{"ccbync", "cc-by-nc"},

	{"creativecommons.org/licenses/by", "cc-by"},
	{"creativecommonsattribution", "cc-by"},
	{"ccby", "cc-by"},

	{"creativecommons.org/publicdomain/zero", "cc0"},
	{"creativecommonszero", "cc0"},
	{"cc0", "cc0"},

	{"creativecommons.org/publicdomain/mark", "pd"},
	{"publicdomain", "pd"},

	{"elsevier.com/openaccess/userlicense", "elsevier-specific: oa user license"},
	{"pubs.acs.org/page/policy/authorchoice_termsofuse.html", "acs-specific: authorchoice/editors choice usage agreement"},
	{"openaccess", "implied-oa"},
}

// boaiLicenses satisfy the Budapest Open Access Initiative definition.
var boaiLicenses = map[string]struct{}{
	"cc-by": {},
	"cc0":   {},
	"pd":    {},
}

// NormalizeLicense maps free-text license statements and license URLs to a
// short license name such as "cc-by". It returns "" when nothing is
// recognized.
func NormalizeLicense(text string) string {
	if text == "" {
		return ""
	}
	squashed := strings.ToLower(text)
	squashed = strings.NewReplacer(" ", "", "-", "", "\u00a0", "").Replace(squashed)
	squashed = strings.TrimPrefix(squashed, "https://")
	squashed = strings.TrimPrefix(squashed, "http://")
	squashed = strings.TrimPrefix(squashed, "www.")

	for _, lookup := range licenseLookups {
		if strings.Contains(squashed, lookup.fragment) {
			return lookup.license
		}
	}
	return ""
}

// IsOpenLicense reports whether a normalized license grants free reading.
func IsOpenLicense(license string) bool {
	return license != ""
}

// IsBOAILicense reports whether a normalized license is BOAI compliant.
func IsBOAILicense(license string) bool {
	_, ok := boaiLicenses[license]
	return ok
}
