package mpesa

import (
	"errors"
	"strings"
)

var ErrInvalidPhoneNumber = errors.New("mpesa: invalid phone number")

// FormatPhoneNumber normalizes a Kenyan mobile number to the 2547XXXXXXXX
// wire format. Accepted inputs: already-prefixed 254 numbers, 0-prefixed
// local numbers, and bare 9-digit subscriber numbers. Anything else is
// rejected rather than guessed at.
func FormatPhoneNumber(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "254") && len(cleaned) == 12:
		return cleaned, nil
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		return "254" + cleaned[1:], nil
	case len(cleaned) == 9:
		return "254" + cleaned, nil
	}
	return "", ErrInvalidPhoneNumber
}
