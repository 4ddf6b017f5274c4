package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies whose minor unit is not cents.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"CLP": 0,
	"VND": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

func MinorUnits(currency string) int32 {
	if units, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return units
	}
	return 2
}

func RoundToMinor(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// NormalizeCurrency upper-cases and trims an ISO-4217-like code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
