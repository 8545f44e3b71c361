// Package email holds small helpers for outbound mail composition.
package email

import (
	"strings"
	"unicode"
)

// GreetingName derives a display name from an email address for use in
// notification salutations: "dana.okafor@example.org" becomes
// "Dana Okafor". Falls back to "there" when nothing usable remains, so the
// salutation still reads naturally.
func GreetingName(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}
	// Plus tags are routing hints, not name parts.
	if plus := strings.IndexByte(localPart, '+'); plus >= 0 {
		localPart = localPart[:plus]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	var words []string
	for _, p := range parts {
		if hasLetter(p) {
			words = append(words, capitalize(p))
		}
	}
	if len(words) == 0 {
		return "there"
	}
	return strings.Join(words, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
