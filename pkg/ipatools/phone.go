package ipatools

import "strings"

// DefaultCountryCode is stripped from international prefixes before phone
// numbers are compared.
const DefaultCountryCode = "90"

// NormalizePhone reduces a phone number to its national significant digits:
// separators are dropped, a "+<cc>" or "00<cc>" prefix for countryCode is
// removed, and so is a single leading trunk zero. Numbers with a different
// country code keep their code, so they still compare equal to each other.
func NormalizePhone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	international := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}
	cc := strings.TrimLeft(countryCode, "+")
	if international && cc != "" && strings.HasPrefix(digits, cc) {
		digits = digits[len(cc):]
	}
	return strings.TrimPrefix(digits, "0")
}

// PhoneMatches reports whether supplied equals any of the stored numbers once
// both are normalized. An empty supplied number or an empty stored list never
// matches.
func PhoneMatches(stored []string, supplied, countryCode string) bool {
	want := NormalizePhone(supplied, countryCode)
	if want == "" {
		return false
	}
	for _, candidate := range stored {
		if NormalizePhone(candidate, countryCode) == want {
			return true
		}
	}
	return false
}
