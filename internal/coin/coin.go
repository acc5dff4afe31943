// Package coin turns free-text label descriptors ("1892 1 Pond", "MS64")
// into the structured coin detail the census is keyed on.
package coin

import (
	"regexp"
	"strconv"
	"strings"

	dErrors "certregistry/pkg/domain-errors"
)

// Strike values.
const (
	StrikeMS = "MS"
	StrikePF = "PF"
	StrikePL = "PL"
	StrikePU = "PU"
)

// MinGrade and MaxGrade bound the Sheldon scale.
const (
	MinGrade = 1
	MaxGrade = 70
)

// ValidStrike reports whether s is one of the four recognised strikes.
func ValidStrike(s string) bool {
	switch s {
	case StrikeMS, StrikePF, StrikePL, StrikePU:
		return true
	}
	return false
}

// ValidGrade reports whether n is on the Sheldon scale.
func ValidGrade(n int) bool {
	return n >= MinGrade && n <= MaxGrade
}

var (
	metalSuffix  = regexp.MustCompile(`(?i)-[SGN]\b`)
	leadingYear  = regexp.MustCompile(`^\d{4}\s+`)
	yearPrefix   = regexp.MustCompile(`^(\d{4})\b`)
	firstDigits  = regexp.MustCompile(`\d+`)
	shillingRe   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+Shillings?\b`)
	pennyRe      = regexp.MustCompile(`(?i)\b(1/4|1/2|1)\s+Penny\b`)
	penceRe      = regexp.MustCompile(`(?i)\b(\d+)\s+Pence\b`)
	pondRe       = regexp.MustCompile(`(?i)\b(1/2|1)\s+Pond\b`)
	randRe       = regexp.MustCompile(`(?i)\bR\s*(\d+)?\b`)
	centRe       = regexp.MustCompile(`(?i)\b(\d+)\s+Cent\b`)
	crownRe      = regexp.MustCompile(`(?i)\bCrown\b`)
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
	silverRe     = regexp.MustCompile(`(?i)-S\b`)
	goldRe       = regexp.MustCompile(`(?i)-G\b`)
	nickelRe     = regexp.MustCompile(`(?i)-N\b`)
)

// SplitYearAndName splits "1892 1 Pond" into ("1892", "1 Pond"). Text that
// does not start with a number is returned whole as the name.
func SplitYearAndName(s string) (year, name string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", ""
	}
	if isDigits(fields[0]) {
		return fields[0], strings.Join(fields[1:], " ")
	}
	return "", strings.Join(fields, " ")
}

// Denomination extracts a canonical denomination such as "2.5 Shillings",
// "1/2 Penny" or "R5". It returns "" when nothing is recognised.
func Denomination(coinName string) string {
	if strings.TrimSpace(coinName) == "" {
		return ""
	}
	clean := metalSuffix.ReplaceAllString(coinName, "")
	if d := matchDenomination(clean); d != "" {
		return d
	}
	if stripped := leadingYear.ReplaceAllString(clean, ""); stripped != clean {
		return matchDenomination(stripped)
	}
	return ""
}

func matchDenomination(text string) string {
	if m := shillingRe.FindStringSubmatch(text); m != nil {
		if m[1] == "1" {
			return "1 Shilling"
		}
		return m[1] + " Shillings"
	}
	if m := pennyRe.FindStringSubmatch(text); m != nil {
		return m[1] + " Penny"
	}
	if m := penceRe.FindStringSubmatch(text); m != nil {
		return m[1] + " Pence"
	}
	if m := pondRe.FindStringSubmatch(text); m != nil {
		return m[1] + " Pond"
	}
	if m := randRe.FindStringSubmatch(text); m != nil {
		if m[1] == "" {
			return "R1"
		}
		return "R" + m[1]
	}
	if m := centRe.FindStringSubmatch(text); m != nil {
		return m[1] + " Cent"
	}
	if crownRe.MatchString(text) {
		return "Crown"
	}
	return ""
}

// Slug converts a denomination into its URL form: "1/2 Pond" -> "1-2-pond".
func Slug(denomination string) string {
	if denomination == "" {
		return "unknown"
	}
	s := strings.ToLower(denomination)
	s = strings.ReplaceAll(s, "½", "half")
	s = strings.NewReplacer(".", "-", "/", "-").Replace(s)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var msPrefixes = []string{"MS", "UNC", "AU", "XF", "VF", "F ", "VG", "G ", "AG", "FR", "PO"}

// Strike maps grade text to its strike family. AU and lower fall under MS.
// Returns "" when the text names no known family.
func Strike(grade string) string {
	upper := strings.ToUpper(strings.TrimSpace(grade))
	if upper == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(upper, "PL") || strings.Contains(upper, "PROOFLIKE"):
		return StrikePL
	case strings.HasPrefix(upper, "PF"):
		return StrikePF
	case strings.HasPrefix(upper, "PU"):
		return StrikePU
	}
	if upper == "F" || upper == "G" {
		return StrikeMS
	}
	for _, p := range msPrefixes {
		if strings.HasPrefix(upper, p) {
			return StrikeMS
		}
	}
	return ""
}

// GradeNumber returns the first run of digits in grade when it lies in
// [1,70], or 0.
func GradeNumber(grade string) int {
	m := firstDigits.FindString(grade)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || !ValidGrade(n) {
		return 0
	}
	return n
}

// Year prefers the explicit year field and falls back to a leading
// four-digit year in the coin name. Returns 0 when neither parses.
func Year(coinName, year string) int {
	if y, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
		return y
	}
	if m := yearPrefix.FindStringSubmatch(coinName); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return 0
}

// Metal reads the -S/-G/-N composition suffix.
func Metal(coinName string) string {
	switch {
	case silverRe.MatchString(coinName):
		return "Silver"
	case goldRe.MatchString(coinName):
		return "Gold"
	case nickelRe.MatchString(coinName):
		return "Nickel"
	}
	return ""
}

var keptIssuers = map[string]struct{}{
	"rhodesia":               {},
	"southern rhodesia":      {},
	"rhodesia & nyasaland":   {},
	"rhodesia and nyasaland": {},
	"malawi":                 {},
	"isle of man":            {},
	"british west africa":    {},
	"united kingdom":         {},
	"australia":              {},
	"new zeland":             {},
	"new zealand":            {},
}

// ZARLastYear is the final year struck under the Zuid-Afrikaansche
// Republiek.
const ZARLastYear = 1902

// NormalizeCountry aligns the issuing country with its era. A zero year
// means unknown.
func NormalizeCountry(country string, year int) string {
	if year == 0 {
		if country == "" {
			return "South Africa"
		}
		return country
	}
	if _, ok := keptIssuers[strings.ToLower(country)]; ok {
		return country
	}
	if year <= ZARLastYear {
		return "ZAR"
	}
	return "South Africa"
}

// Fields are the free-text descriptors a label carries.
type Fields struct {
	Country     string
	YearAndName string
	CoinName    string
	Year        string
	Grade       string
}

// Detail is the structured coin description stored on a certificate.
type Detail struct {
	Denomination     string `json:"denomination"`
	DenominationSlug string `json:"denomination_slug"`
	Country          string `json:"country"`
	Year             int    `json:"year"`
	Metal            string `json:"metal,omitempty"`
	Strike           string `json:"strike"`
	GradeText        string `json:"grade_text"`
	GradeNum         int    `json:"grade_num"`
}

// Derive composes the extractors. Denomination, year and a grade number
// are required because they key the census bucket; strike defaults to MS.
func Derive(f Fields) (Detail, error) {
	name := strings.TrimSpace(f.CoinName)
	year := strings.TrimSpace(f.Year)
	if name == "" && f.YearAndName != "" {
		var splitYear string
		splitYear, name = SplitYearAndName(f.YearAndName)
		if year == "" {
			year = splitYear
		}
	}

	d := Detail{
		Denomination: Denomination(name),
		Year:         Year(name, year),
		Metal:        Metal(name),
		GradeText:    strings.TrimSpace(f.Grade),
		GradeNum:     GradeNumber(f.Grade),
		Strike:       Strike(f.Grade),
	}
	if d.Strike == "" {
		d.Strike = StrikeMS
	}

	if d.GradeNum == 0 {
		if raw := firstDigits.FindString(f.Grade); raw != "" {
			if trimmed := strings.TrimLeft(raw, "0"); trimmed != "" {
				raw = trimmed
			} else {
				raw = "0"
			}
			return Detail{}, dErrors.Newf(dErrors.CodeValidation, "grade %s outside %d..%d", raw, MinGrade, MaxGrade)
		}
	}

	var missing []string
	if d.Denomination == "" {
		missing = append(missing, "denomination")
	}
	if d.Year == 0 {
		missing = append(missing, "year")
	}
	if d.GradeNum == 0 {
		missing = append(missing, "grade")
	}
	if len(missing) > 0 {
		return Detail{}, dErrors.Newf(dErrors.CodeValidation, "missing coin fields: %s", strings.Join(missing, ", "))
	}

	d.DenominationSlug = Slug(d.Denomination)
	d.Country = NormalizeCountry(strings.TrimSpace(f.Country), d.Year)
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
