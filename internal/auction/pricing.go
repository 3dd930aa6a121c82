package auction

import "math/bits"

// PriceAt returns the linearly decayed price at now for a window starting at
// startingTime with startingPrice, reaching zero after period seconds:
//
//	price = startingPrice - elapsed*startingPrice/period
//
// The product elapsed*startingPrice can exceed 64 bits, so the interpolation
// runs through a 128-bit intermediate. The quotient is bounded by
// startingPrice, so the narrowing division cannot overflow. period must be
// positive; OpenRound guarantees that for every open round.
func PriceAt(startingPrice uint64, startingTime, period, now int64) uint64 {
	elapsed := now - startingTime
	if elapsed <= 0 {
		return startingPrice
	}
	if elapsed >= period {
		return 0
	}

	hi, lo := bits.Mul64(uint64(elapsed), startingPrice)
	q, _ := bits.Div64(hi, lo, uint64(period))
	return startingPrice - q
}

// FeeOf returns the protocol fee owed on price at rateBps basis points,
// rounded down. rateBps is bounded to MaxBps by config validation.
func FeeOf(price uint64, rateBps uint32) uint64 {
	hi, lo := bits.Mul64(price, uint64(rateBps))
	q, _ := bits.Div64(hi, lo, MaxBps)
	return q
}

// FeeSplit breaks the price charged on a bid into the protocol fee and the
// portion of that fee to burn, per the config's bps rates. Fee routing is the
// caller's concern; the bid path itself settles the full price to the vault.
func FeeSplit(price uint64, feeBps, feeBurnBps uint32) (fee, burn uint64) {
	fee = FeeOf(price, feeBps)
	burn = FeeOf(fee, feeBurnBps)
	return fee, burn
}
