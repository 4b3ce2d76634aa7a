package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromCents converts minor units into a decimal amount in major units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents rounds a major-unit amount half away from zero to minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// Format renders "12.50 EUR".
func Format(cents int64, currency string) string {
	return FromCents(cents).StringFixed(2) + " " + strings.ToUpper(currency)
}

// Ratio returns part/whole rounded to 4 places, or zero when whole is zero.
func Ratio(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).DivRound(decimal.NewFromInt(whole), 4)
}

// Average returns the mean in minor units, rounded.
func Average(totalCents int64, n int64) int64 {
	if n == 0 {
		return 0
	}
	return decimal.NewFromInt(totalCents).DivRound(decimal.NewFromInt(n), 0).IntPart()
}
