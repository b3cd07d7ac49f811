package scanner

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point scale of reward and share amounts.
const TokenDecimals = 18

// DisplayPlaces is the number of fractional digits shown for token amounts.
const DisplayPlaces = 6

// FormatToken renders a raw 18-decimal amount with six fractional digits.
// A nil amount renders as "-".
func FormatToken(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).StringFixed(DisplayPlaces)
}

// FormatTokenExact renders a raw amount without losing any digits.
func FormatTokenExact(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}
