package forecast

import (
	"math"
	"math/rand"
)

// mcPaths is the Monte-Carlo path count for the MC_CLOSE sub-model,
// spec.md §4.5 ("≈700 paths").
const mcPaths = 700

// monteCarloTarget simulates geometric-Brownian-motion price paths for
// horizonS seconds with per-second drift driftPerS and volatility
// sigmaPerS, starting at `now`, and tallies the fraction of paths that
// ever touch `target` (pHit) versus close at or above it at the horizon
// (pCloseAbove). Deterministic for a fixed seed, per spec.md §8.
func monteCarloTarget(now, target, driftPerS, sigmaPerS, horizonS float64, seed int64) (pHit, pCloseAbove float64) {
	if now <= 0 || horizonS <= 0 {
		return 0, 0
	}
	rng := rand.New(rand.NewSource(seed))

	steps := int(horizonS)
	if steps < 1 {
		steps = 1
	}
	if steps > 900 {
		steps = 900
	}
	dt := horizonS / float64(steps)
	driftTerm := (driftPerS - 0.5*sigmaPerS*sigmaPerS) * dt
	volTerm := sigmaPerS * math.Sqrt(dt)

	var hits, closesAbove int
	for p := 0; p < mcPaths; p++ {
		price := now
		touched := false
		for s := 0; s < steps; s++ {
			z := rng.NormFloat64()
			price *= math.Exp(driftTerm + volTerm*z)
			if !touched && price >= target {
				touched = true
			}
		}
		if touched {
			hits++
		}
		if price >= target {
			closesAbove++
		}
	}
	pHit = float64(hits) / float64(mcPaths)
	pCloseAbove = float64(closesAbove) / float64(mcPaths)
	return pHit, pCloseAbove
}
