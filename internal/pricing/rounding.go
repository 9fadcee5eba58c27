// Package pricing rounds monetary amounts to the smallest banknote the
// stores accept. Charges and totals round up; displayed unit prices round
// to the nearest denomination.
package pricing

import "math"

// Denomination is the rounding unit in minor currency units.
const Denomination int64 = 500

// RoundUp returns the smallest multiple of denomination that is >= amount.
// A non-positive denomination returns amount rounded up to an integer.
func RoundUp(amount float64, denomination int64) int64 {
	if denomination <= 0 {
		return int64(math.Ceil(amount))
	}
	d := float64(denomination)
	return int64(math.Ceil(amount/d)) * denomination
}

// RoundNearest rounds amount to the nearest multiple of denomination,
// with exact midpoints rounding up (RoundNearest(250, 500) == 500).
func RoundNearest(amount float64, denomination int64) int64 {
	if denomination <= 0 {
		return int64(math.Floor(amount + 0.5))
	}
	d := float64(denomination)
	return int64(math.Floor(amount/d+0.5)) * denomination
}

// DisplayPrice is the price shown next to a product.
func DisplayPrice(unitPrice int64) int64 {
	return RoundNearest(float64(unitPrice), Denomination)
}

// ChargeTotal is the amount a customer is charged for total.
func ChargeTotal(total int64) int64 {
	return RoundUp(float64(total), Denomination)
}
