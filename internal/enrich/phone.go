// Package enrich holds the best-effort helpers normalizers use to fill in
// customer fields: phone canonicalization and IP geolocation.
package enrich

import "strings"

const brazilCountryCode = "55"

// NormalizePhone canonicalizes a Brazilian phone number to
// country code + area code + subscriber number. Every non-digit is dropped,
// the country code is prepended when missing and an 8-digit subscriber
// number gains the mobile 9 prefix.
//
//	"+55 (11) 1234-5678" → "5511912345678"
//	"11987654321"        → "5511987654321"
func NormalizePhone(raw string) string {
	digits := strings.Map(keepDigit, raw)
	if digits == "" {
		return ""
	}

	if !strings.HasPrefix(digits, brazilCountryCode) {
		digits = brazilCountryCode + digits
	}
	if len(digits) < 4 {
		return digits
	}

	area, subscriber := digits[2:4], digits[4:]
	if len(subscriber) == 8 {
		subscriber = "9" + subscriber
	}
	return brazilCountryCode + area + subscriber
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
