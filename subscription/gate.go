package subscription

import (
	"math"
	"math/bits"

	"github.com/squadracorsepolito/acmesig/dbc"
)

// RateUnit scales rate and watchdog thresholds to the unit of the frame stamps.
const RateUnit = 1000

// ShouldEmit decides whether an update has to be published.
//
// Updated values are throttled by rate. Any other status is only published
// when the flag is ALL and the watchdog elapsed. Both thresholds are strict.
func ShouldEmit(status dbc.Status, now, last, rate, watchdog uint64, flag Flag) bool {
	elapsed := saturatingSub(now, last)

	if status == dbc.StatusUpdated {
		return elapsed > saturatingMul(rate, RateUnit)
	}

	return flag == FlagAll && elapsed > saturatingMul(watchdog, RateUnit)
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
