// Package regime derives ATM implied volatility, skew, curvature, and a
// coarse volatility regime label from a single-expiration IV surface. It
// uses the same interior-index bracket-and-interpolate pattern as
// internal/varswap's strike walk, applied here to a finite-difference
// stencil around spot instead of a strike sum.
package regime

import (
	"math"
	"sort"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/ivsurface"
)

// Label is the coarse volatility regime classification.
type Label string

const (
	Calm     Label = "calm"
	Normal   Label = "normal"
	Stressed Label = "stressed"
	Crisis   Label = "crisis"
)

// Params is the full set of regime-derived quantities for one expiration.
type Params struct {
	ATMIV                 float64
	Skew                  float64
	Curvature             float64
	ImpliedSpotVolCorr    float64
	ImpliedVolOfVol       float64
	Regime                Label
	ExpectedDailySpotMove float64
	ExpectedDailyVolMove  float64
}

const tradingDaysPerYear = 252

// DeriveRegimeParams computes regime.Params from one IVSurface and a spot
// price. Returns Params with every numeric field zero and the Calm label
// if the surface has fewer than two strikes.
func DeriveRegimeParams(surface ivsurface.IVSurface, spot float64) Params {
	n := len(surface.Strikes)
	if n < 2 {
		return Params{Regime: Calm}
	}

	strikes := surface.Strikes
	ivs := surface.SmoothedIVs
	if !sort.Float64sAreSorted(strikes) {
		// defensive: surfaces are produced pre-sorted, but guard anyway.
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return strikes[idx[a]] < strikes[idx[b]] })
		sortedK := make([]float64, n)
		sortedIV := make([]float64, n)
		for i, j := range idx {
			sortedK[i] = strikes[j]
			sortedIV[i] = ivs[j]
		}
		strikes, ivs = sortedK, sortedIV
	}

	lo := 0
	for lo < n-1 && strikes[lo+1] <= spot {
		lo++
	}
	if lo > n-2 {
		lo = n - 2
	}
	hi := lo + 1

	atmIV := interpolate(strikes[lo], ivs[lo], strikes[hi], ivs[hi], spot) / 100

	skew := 0.0
	if strikes[hi] != strikes[lo] {
		skew = ((ivs[hi] - ivs[lo]) / (strikes[hi] - strikes[lo])) * spot
	}

	i := nearestInteriorIndex(strikes, spot)
	curvature := 0.0
	if i > 0 && i < n-1 {
		h := (strikes[i+1] - strikes[i-1]) / 2
		if h != 0 {
			curvature = (ivs[i+1] - 2*ivs[i] + ivs[i-1]) / (h * h) * spot * spot
		}
	}

	impliedSpotVolCorr := clamp(skew*0.15, -0.95, 0.5)
	impliedVolOfVol := math.Sqrt(math.Abs(curvature)) * 2 * atmIV

	regime := Calm
	switch {
	case atmIV < 0.15:
		regime = Calm
	case atmIV < 0.20:
		regime = Normal
	case atmIV < 0.35:
		regime = Stressed
	default:
		regime = Crisis
	}

	sqrt252 := math.Sqrt(tradingDaysPerYear)

	return Params{
		ATMIV:                 chain.Sanitize(atmIV),
		Skew:                  chain.Sanitize(skew),
		Curvature:             chain.Sanitize(curvature),
		ImpliedSpotVolCorr:    chain.Sanitize(impliedSpotVolCorr),
		ImpliedVolOfVol:       chain.Sanitize(impliedVolOfVol),
		Regime:                regime,
		ExpectedDailySpotMove: chain.Sanitize(atmIV / sqrt252),
		ExpectedDailyVolMove:  chain.Sanitize(impliedVolOfVol / sqrt252),
	}
}

func interpolate(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y0
	}
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// nearestInteriorIndex finds the strike index closest to spot, clamped to
// the interior [1, n-2] so a central second difference is always available
// when n >= 3.
func nearestInteriorIndex(strikes []float64, spot float64) int {
	n := len(strikes)
	best := 0
	bestDist := math.Abs(strikes[0] - spot)
	for i := 1; i < n; i++ {
		d := math.Abs(strikes[i] - spot)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 1 {
		best = 1
	}
	if best > n-2 {
		best = n - 2
	}
	if best < 0 {
		best = 0
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
