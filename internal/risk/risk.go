// Package risk holds the stateless profit and trailing-stop math shared
// by the engine, the position store and the trailing sweeper.
package risk

// ProfitPct returns the unrealized profit of a position in percent,
// ignoring fees and slippage. A non-positive entry yields 0 to guard
// against division by zero.
func ProfitPct(side string, entry, last float64) float64 {
	if entry <= 0 {
		return 0
	}
	switch side {
	case "LONG":
		return (last - entry) / entry * 100
	case "SHORT":
		return (entry - last) / entry * 100
	}
	return 0
}

// TrailStopPrice derives the stop-trigger price from a reference price
// and a trail distance in percent. At open the reference is the entry
// price; on updates it is the latest price so the stop follows the
// market.
func TrailStopPrice(side string, refPrice, trailPct float64) float64 {
	t := trailPct / 100
	switch side {
	case "LONG":
		return refPrice * (1 - t)
	case "SHORT":
		return refPrice * (1 + t)
	}
	return refPrice
}

// ActiveTrailPct selects the trail distance for the current profit
// level. Tightening is one-way: once a position's profit has crossed the
// trigger the tightened distance applies for the rest of its lifetime,
// even if profit later falls back below the trigger.
func ActiveTrailPct(profitPct float64, alreadyTightened bool, initial, trigger, tightened, floor float64) (pct float64, nowTightened bool) {
	if alreadyTightened || profitPct >= trigger {
		return max(tightened, floor), true
	}
	return initial, false
}
