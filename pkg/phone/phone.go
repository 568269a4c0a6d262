// Package phone normalizes customer phone numbers.
package phone

import (
	"strings"
	"unicode"

	"github.com/ttacon/libphonenumber"

	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// SuffixLength is how many trailing digits identify a phone across formats.
const SuffixLength = 9

// Normalize parses raw in the given default region and returns it in E.164.
func Normalize(raw, region string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	if region == "" {
		region = "US"
	}
	parsed, err := libphonenumber.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "phone is not parseable")
	}
	return libphonenumber.Format(parsed, libphonenumber.E164), nil
}

// Digits strips everything but digits.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suffix returns the last SuffixLength digits of raw, or all digits when shorter.
func Suffix(raw string) string {
	digits := Digits(raw)
	if len(digits) <= SuffixLength {
		return digits
	}
	return digits[len(digits)-SuffixLength:]
}
