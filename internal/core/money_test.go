package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
	}{
		{"12300", 12300},
		{"12,300", 12300},
		{"12,300원", 12300},
		{"1,234,567", 1234567},
		{" 4500", 4500},
		{"+700", 700},
		{"-1,000", -1000},
		{"0", 0},
		{"", 0},
		{"abc", 0},
		{"원 1000", 0},
		{"3.50", 3},
		{"99999999999999999999", 0},
	}
	for _, tc := range cases {
		if got := ParseAmount(tc.in); got != tc.out {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tc.in, got, tc.out)
		}
	}
}

func TestFormatWon(t *testing.T) {
	cases := []struct {
		in  int64
		out string
	}{
		{0, "0원"},
		{999, "999원"},
		{1000, "1,000원"},
		{12300, "12,300원"},
		{1234567, "1,234,567원"},
		{-45000, "-45,000원"},
	}
	for _, tc := range cases {
		if got := FormatWon(tc.in); got != tc.out {
			t.Fatalf("FormatWon(%d) = %q, want %q", tc.in, got, tc.out)
		}
	}
}
