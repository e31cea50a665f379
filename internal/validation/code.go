// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

const (
	minCouponCodeLen = 3
	maxCouponCodeLen = 32
)

// NormalizeCouponCode приводит код купона к каноническому виду: без пробелов по краям, в верхнем регистре.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCouponCode проверяет, что нормализованный код состоит из латинских букв, цифр, '-' и '_'.
func IsValidCouponCode(code string) bool {
	if len(code) < minCouponCodeLen || len(code) > maxCouponCodeLen {
		return false
	}

	for i := 0; i < len(code); i++ {
		ch := rune(code[i])
		switch {
		case ch >= 'A' && ch <= 'Z':
		case unicode.IsDigit(ch):
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}

	return true
}

// NormalizeCodes нормализует список кодов, отбрасывая пустые и повторяющиеся значения.
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	res := make([]string, 0, len(codes))
	for _, c := range codes {
		c = NormalizeCouponCode(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		res = append(res, c)
	}
	return res
}
