package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"AlreadyNormalized", "5521999998888", "5521999998888"},
		{"FormattedMobile", "(21) 99999-8888", "5521999998888"},
		{"MissingCountryCode", "21999998888", "5521999998888"},
		{"OldEightDigitFormat", "552199998888", "5521999998888"},
		{"WhitespacePadding", "  5521999998888  ", "5521999998888"},
		{"PlusPrefix", "+55 21 99999-8888", "5521999998888"},
		{"Empty", "", ""},
		{"NonDigitsOnly", "abc", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePhone(tc.input))
		})
	}
}
