package utils

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidPhone is returned when a phone number cannot be normalized to
// E.164 form.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts user input to E.164:
//
//   - 10 digits starting 6-9 → assumed Indian mobile, prefixed +91
//   - leading + with 10..15 digits total → preserved as-is
//   - more than 10 digits without + → prefixed with +
//   - anything else → rejected
//
// All non-digit characters except a leading + are stripped first, so
// "+91 98765-43210" and "9876543210" normalize identically.
func NormalizePhone(input string) (string, error) {
	s := strings.TrimSpace(input)
	plus := strings.HasPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case plus:
		if len(digits) < 10 || len(digits) > 15 {
			return "", ErrInvalidPhone
		}
		return "+" + digits, nil
	case len(digits) == 10 && digits[0] >= '6' && digits[0] <= '9':
		return "+91" + digits, nil
	case len(digits) > 10 && len(digits) <= 15:
		return "+" + digits, nil
	default:
		return "", ErrInvalidPhone
	}
}

// MaskPhone hides everything but the last four digits of a normalized
// number, e.g. "+919876543210" → "********3210".
func MaskPhone(normalized string) string {
	if len(normalized) <= 4 {
		return normalized
	}
	tail := normalized[len(normalized)-4:]
	return strings.Repeat("*", len(normalized)-4) + tail
}

// PhoneLast6 returns the trailing six digits; used to seed generated
// usernames for phone registrations.
func PhoneLast6(normalized string) string {
	var b strings.Builder
	for _, r := range normalized {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) <= 6 {
		return d
	}
	return d[len(d)-6:]
}
