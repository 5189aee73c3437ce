// Package core provides money parsing and handling utilities.
//
// This file contains the parser for accounting-formatted amounts as they
// appear in the financial sheet, and the formatters used when those amounts
// are shown to a user or written to an export.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numeralPattern finds an optional opening parenthesis followed by digit
// groups (optionally comma separated) and an optional fractional part.
var numeralPattern = regexp.MustCompile(`(\()?((?:\d+,?)+(?:\.\d+)?)`)

// Amount is an exact decimal that may be absent. The zero value is absent.
type Amount struct {
	value decimal.Decimal
	valid bool
}

// SomeAmount returns a present Amount holding d.
func SomeAmount(d decimal.Decimal) Amount {
	return Amount{value: d, valid: true}
}

// NoAmount returns an absent Amount.
func NoAmount() Amount {
	return Amount{}
}

// Valid reports whether the amount is present.
func (a Amount) Valid() bool {
	return a.valid
}

// Value returns the decimal and whether it is present.
func (a Amount) Value() (decimal.Decimal, bool) {
	if !a.valid {
		return decimal.Zero, false
	}
	return a.value, true
}

// OrZero returns the decimal, or zero when absent.
func (a Amount) OrZero() decimal.Decimal {
	if !a.valid {
		return decimal.Zero
	}
	return a.value
}

// Equal reports whether both amounts are absent, or both present with equal values.
func (a Amount) Equal(b Amount) bool {
	if a.valid != b.valid {
		return false
	}
	return !a.valid || a.value.Equal(b.value)
}

// String renders the amount for exports: empty when absent, two decimals when
// the value is exact at cents, full precision otherwise.
func (a Amount) String() string {
	if !a.valid {
		return ""
	}
	if a.value.Equal(a.value.Round(2)) {
		return a.value.StringFixed(2)
	}
	return a.value.String()
}

// Money renders the amount in the two-decimal display format, empty when absent.
func (a Amount) Money() string {
	if !a.valid {
		return ""
	}
	return FormatMoney(a.value)
}

// MarshalJSON encodes an absent amount as null and a present one as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return []byte("null"), nil
	}
	return a.value.MarshalJSON()
}

// ParseAmount converts an accounting-formatted cell into an Amount.
//
// The first numeral found anywhere in the string is used. Grouping commas are
// dropped and a leading "(" marks the value as negative. Strings without a
// numeral yield an absent Amount.
//
// Examples:
//
//	ParseAmount("1,234.50")  -> 1234.50
//	ParseAmount("(500)")     -> -500
//	ParseAmount("$ (12.5)")  -> -12.5
//	ParseAmount("-")         -> absent
//	ParseAmount("N/A")       -> absent
func ParseAmount(s string) Amount {
	m := numeralPattern.FindStringSubmatch(s)
	if m == nil {
		return NoAmount()
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return NoAmount()
	}
	if m[1] != "" {
		d = d.Neg()
	}
	return SomeAmount(d)
}

// FormatMoney formats d as dollars with thousands separators and two
// decimals, e.g. "$1,234.50" or "-$200.00". Rounding is display only.
func FormatMoney(d decimal.Decimal) string {
	rounded := d.Round(2)
	neg := rounded.IsNegative()
	s := rounded.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
