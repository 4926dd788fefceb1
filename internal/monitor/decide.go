package monitor

import "github.com/shopspring/decimal"

// Decide applies the edge-triggered notification policy. It returns the
// notified price to persist and whether a notification should fire.
//
// A rule is armed while NotifiedPrice is null. Crossing to or below the
// threshold fires once and remembers the price; staying below fires again
// only on a further decrease; going back above the threshold re-arms.
func Decide(threshold decimal.Decimal, notified decimal.NullDecimal, price decimal.Decimal) (decimal.NullDecimal, bool) {
	if price.GreaterThan(threshold) {
		return decimal.NullDecimal{}, false
	}
	if !notified.Valid || price.LessThan(notified.Decimal) {
		return decimal.NewNullDecimal(price), true
	}
	return notified, false
}
