// Package core provides money parsing and formatting utilities.
//
// Amounts are whole won. Receipts print them with thousands separators and
// often a trailing unit ("12,300원"), so parsing is deliberately lenient.
package core

import (
	"strconv"
	"strings"
)

const maxAmount = 1<<63 - 1

// ParseAmount extracts the leading integer from an OCR amount string.
//
// Thousands separators are removed first, then leading whitespace and an
// optional sign are accepted and digits are consumed up to the first other
// character. A string without leading digits, or one that overflows, yields 0.
//
// Examples:
//
//	ParseAmount("12,300")   -> 12300
//	ParseAmount("12,300원") -> 12300
//	ParseAmount("abc")      -> 0
func ParseAmount(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		d := int64(s[digits] - '0')
		if n > (maxAmount-d)/10 {
			return 0
		}
		n = n*10 + d
		digits++
	}
	if digits == 0 {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

// FormatWon renders an amount with thousands separators, e.g. "12,300원".
func FormatWon(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	raw := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString("원")
	return b.String()
}
