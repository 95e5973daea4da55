package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// RoundMoney rounds d to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns base * pct / 100, rounded to cents.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(pct).Div(decimal.NewFromInt(100)))
}

// TruncateDay drops the clock part of t, keeping its location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
