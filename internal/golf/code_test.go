package golf

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var codeRe = regexp.MustCompile(`^[0-9A-Z]{6}$`)

func TestGenerateGameCode_Format(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := GenerateGameCode()
		require.Regexp(t, codeRe, code)
		require.True(t, ValidCode(code), "ValidCode(%q)", code)
	}
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "AB12CD", NormalizeCode("  ab12cd \n"))
	require.Equal(t, "", NormalizeCode("   "))
}

func TestValidCode(t *testing.T) {
	cases := []struct {
		s  string
		ok bool
	}{
		{"AB12CD", true},
		{"000000", true},
		{"ZZZZZZ", true},
		{"ab12cd", false},
		{"AB12C", false},
		{"AB12CDE", false},
		{"AB-2CD", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidCode(tc.s); got != tc.ok {
			t.Fatalf("ValidCode(%q)=%v want %v", tc.s, got, tc.ok)
		}
	}
}
