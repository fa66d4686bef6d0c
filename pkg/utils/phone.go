package utils

import "strings"

const brazilCountryCode = "55"

// NormalizePhone applies the gateway's phone formatting rules: strip
// non-digits, prepend the country code when missing, and insert the mobile
// '9' after the area code when the digit count implies an 8-digit
// landline-style number. The transform is fixed; it does not validate that
// the result is a real number.
func NormalizePhone(raw string) string {
	digits := keepDigits(strings.TrimSpace(raw))
	if digits == "" {
		return digits
	}

	if !strings.HasPrefix(digits, brazilCountryCode) {
		digits = brazilCountryCode + digits
	}

	// 55 + DDD (2) + 8 digits: old-format number, insert the mobile 9
	if len(digits) == 12 {
		digits = digits[:4] + "9" + digits[4:]
	}

	return digits
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
