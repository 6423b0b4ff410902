// Package phone normalizes user-entered phone numbers to E.164.
package phone

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// IsE164 reports whether value is already in strict E.164 form.
func IsE164(value string) bool {
	return e164Pattern.MatchString(value)
}

// Normalize parses value and returns its E.164 representation.
//
// defaultRegion is a CLDR region code (for example "US") used when value has
// no leading country code; when empty, value must start with "+".
func Normalize(value string, defaultRegion string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("phone number is required")
	}
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if region == "" && !strings.HasPrefix(value, "+") {
		return "", fmt.Errorf("phone number %q has no country code", value)
	}

	parsed, err := phonenumbers.Parse(value, region)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("phone number %q is not valid", value)
	}
	formatted := phonenumbers.Format(parsed, phonenumbers.E164)
	if !IsE164(formatted) {
		return "", fmt.Errorf("phone number %q is not valid", value)
	}
	return formatted, nil
}

// Region returns the region code for an E.164 number, or "" when unknown.
func Region(e164 string) string {
	parsed, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(parsed)
}
