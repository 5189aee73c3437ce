package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1,234.50", "1234.50", true},
		{"1000.00", "1000", true},
		{"(500)", "-500", true},
		{"(200.00)", "-200", true},
		{"$1,000,000.01", "1000000.01", true},
		{"$ (12.5)", "-12.5", true},
		{" 42 ", "42", true},
		{"12.", "12", true},
		{"0", "0", true},
		{"1,2,3", "123", true},
		{"7 and 9", "7", true},
		{"-", "", false},
		{"", "", false},
		{"N/A", "", false},
		{"(", "", false},
		{"()", "", false},
		{"$", "", false},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if !tc.ok {
			assert.False(t, got.Valid(), "%q should be absent", tc.in)
			continue
		}
		v, ok := got.Value()
		require.True(t, ok, "%q should be present", tc.in)
		assert.True(t, v.Equal(decimal.RequireFromString(tc.out)), "%q: expected %s, got %s", tc.in, tc.out, v)
	}
}

func TestParseAmount_ExactSums(t *testing.T) {
	// Ten cents added ten times must be exactly one dollar.
	sum := decimal.Zero
	for i := 0; i < 10; i++ {
		sum = sum.Add(ParseAmount("0.10").OrZero())
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), "got %s", sum)
}

func TestAmount_AbsentIsNotZero(t *testing.T) {
	absent := NoAmount()
	zero := SomeAmount(decimal.Zero)

	assert.False(t, absent.Valid())
	assert.True(t, zero.Valid())
	assert.False(t, absent.Equal(zero))
	assert.True(t, absent.OrZero().IsZero())
	assert.Equal(t, "", absent.String())
	assert.Equal(t, "0.00", zero.String())
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "1234.50", ParseAmount("1,234.5").String())
	assert.Equal(t, "-200.00", ParseAmount("(200)").String())
	assert.Equal(t, "0.125", ParseAmount("0.125").String())
}

func TestAmount_MarshalJSON(t *testing.T) {
	b, err := NoAmount().MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = ParseAmount("(1.5)").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"-1.5"`, string(b))
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":          "$0.00",
		"5":          "$5.00",
		"999.999":    "$1,000.00",
		"1234.5":     "$1,234.50",
		"1234567.89": "$1,234,567.89",
		"-200":       "-$200.00",
		"-0.001":     "$0.00",
		"100000":     "$100,000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney(decimal.RequireFromString(in)), in)
	}
}
