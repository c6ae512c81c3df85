package update

import (
	"math/rand"
	"time"
)

// backoffSeconds implements the per-list exponential backoff table of
// spec §7, keyed by the number of consecutive update failures.
func backoffSeconds(rng *rand.Rand, errors int) int {
	switch {
	case errors <= 1:
		return 60
	case errors == 2:
		return randRange(rng, 30*60, 60*60)
	case errors == 3:
		return randRange(rng, 60*60, 120*60)
	case errors == 4:
		return randRange(rng, 2*3600, 4*3600)
	case errors == 5:
		return randRange(rng, 4*3600, 8*3600)
	default:
		return 480 * 60
	}
}

func randRange(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

const (
	rekeyWait = 10 * time.Second
	resetWait = 10 * time.Second
)
