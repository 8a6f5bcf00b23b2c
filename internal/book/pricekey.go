// Package book maintains in-memory orderbook state with fixed-point
// price keys, so levels that render the same collapse into one entry
// instead of drifting apart through float noise.
package book

import "math"

// priceScale is the fixed-point resolution for price keys, 1e-4.
const priceScale = 10_000

// PriceKey is a price encoded as round(price * 1e4).
type PriceKey int64

// KeyFromPrice encodes a display price into its fixed-point key.
func KeyFromPrice(p float64) PriceKey {
	return PriceKey(math.Round(p * priceScale))
}

// Price decodes the key back into a display price.
func (k PriceKey) Price() float64 {
	return float64(k) / priceScale
}
