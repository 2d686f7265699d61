package notifier

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts a US number to E.164. Anything that is not 10 digits, or 11
// digits with a leading 1, is rejected rather than guessed at.
func NormalizePhone(raw string) (string, error) {
	digits := Digits(raw)
	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	}
	return "", ErrInvalidPhone
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
