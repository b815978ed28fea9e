// Package validate holds the small input validators spec.md §6/§8 treats as
// contract-level (tested directly, not hidden inside a larger component).
package validate

import "regexp"

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// E164 reports whether phone matches the E.164 shape spec.md requires for
// outbound-call placement (§4.6, §6): a leading '+', a non-zero first
// digit, and 2-15 total digits.
func E164(phone string) bool {
	return e164Pattern.MatchString(phone)
}
