package models

import "github.com/shopspring/decimal"

// MoneyPlaces is how many decimal places rents and fees are shown with.
const MoneyPlaces = 2

// Money formats an amount the way it is stored and shown, e.g. "6.00".
func Money(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
