package mpesa

import (
	"errors"
	"testing"
)

func TestFormatPhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"254712345678", "254712345678"},
		{"0712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0110123456", "254110123456"},
		{"+254 712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
		{"(0712) 345678", "254712345678"},
	}
	for _, tc := range cases {
		got, err := FormatPhoneNumber(tc.in)
		if err != nil {
			t.Errorf("FormatPhoneNumber(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("FormatPhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatPhoneNumberRejects(t *testing.T) {
	bad := []string{
		"",
		"12345",
		"07123456789",   // too long for a 0-prefixed number
		"25471234567",   // 254 prefix but 11 digits
		"2547123456789", // 254 prefix but 13 digits
		"no digits here",
		"1712345678", // wrong country prefix, 10 digits
	}
	for _, in := range bad {
		if _, err := FormatPhoneNumber(in); !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("FormatPhoneNumber(%q) = %v, want ErrInvalidPhoneNumber", in, err)
		}
	}
}
