// Package ivsurface builds the per-(expiration, option type) implied
// volatility surface from a chain snapshot and smooths it by projecting
// total variance onto its lower convex hull in strike. It follows
// the strike-sort and exact-match lookup discipline already established
// in internal/varswap, and reuses the bisection IV solver from
// internal/pricing.
package ivsurface

import (
	"math"
	"sort"
	"time"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/pricing"
)

// VolModel selects the pricing model used to invert IV. Only BlackScholes
// is implemented; other tags are reserved for future pricing models.
type VolModel string

const BlackScholes VolModel = "blackscholes"

// SmoothingModel selects the post-processing applied to the raw IV grid.
type SmoothingModel string

const (
	TotalVariance SmoothingModel = "totalvariance"
	NoSmoothing   SmoothingModel = "none"
)

// normalizeSmoothingModel treats any unrecognized tag as NoSmoothing: an
// unsupported enum degrades rather than errors.
func normalizeSmoothingModel(m SmoothingModel) SmoothingModel {
	if m == TotalVariance {
		return TotalVariance
	}
	return NoSmoothing
}

// IVSurface is the raw+smoothed IV grid for one (expiration, option type).
type IVSurface struct {
	Expiration          string
	ExpirationTimestamp int64
	OptionType          chain.OptionType
	Strikes             []float64
	RawIVs              []float64 // percentage units
	SmoothedIVs         []float64 // percentage units
}

type groupKey struct {
	expiration string
	optionType chain.OptionType
}

// GetIVSurfaces builds IV surfaces for every (expiration, option type) pair
// present in the chain, as of now.
func GetIVSurfaces(volModel VolModel, smoothingModel SmoothingModel, oc chain.OptionChain) []IVSurface {
	return GetIVSurfacesAt(volModel, smoothingModel, oc, time.Now().UnixMilli())
}

// GetIVSurfacesAt is the deterministic, testable variant taking an
// explicit "as of" timestamp in epoch ms.
func GetIVSurfacesAt(volModel VolModel, smoothingModel SmoothingModel, oc chain.OptionChain, asOfMillis int64) []IVSurface {
	smoothingModel = normalizeSmoothingModel(smoothingModel)

	groups := map[groupKey][]chain.NormalizedOption{}
	var order []groupKey
	for _, o := range oc.Options {
		k := groupKey{expiration: o.Expiration, optionType: o.OptionType}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].expiration != order[j].expiration {
			return order[i].expiration < order[j].expiration
		}
		return order[i].optionType < order[j].optionType
	})

	out := make([]IVSurface, 0, len(order))
	for _, k := range order {
		opts := groups[k]
		sort.Slice(opts, func(i, j int) bool { return opts[i].Strike < opts[j].Strike })

		expMS := opts[0].ExpirationTimestamp
		T := float64(expMS-asOfMillis) / float64(chain.MSPerYear)

		strikes := make([]float64, len(opts))
		rawIVs := make([]float64, len(opts))
		for i, o := range opts {
			strikes[i] = o.Strike
			if T <= 0 {
				rawIVs[i] = 0
				continue
			}
			iv := pricing.ImpliedVolatility(o.Mark, oc.Spot, o.Strike, oc.RiskFreeRate, oc.DividendYield, T, o.OptionType)
			rawIVs[i] = iv
		}

		smoothed := append([]float64(nil), rawIVs...)
		if smoothingModel == TotalVariance && T > 0 && expMS > asOfMillis {
			smoothed = smoothTotalVariance(strikes, rawIVs, T)
		}

		out = append(out, IVSurface{
			Expiration:          k.expiration,
			ExpirationTimestamp: expMS,
			OptionType:          k.optionType,
			Strikes:             strikes,
			RawIVs:              rawIVs,
			SmoothedIVs:         smoothed,
		})
	}

	return out
}

// smoothTotalVariance projects (K, w) total variance onto its lower
// convex hull to enforce convexity in strike for this one expiration.
func smoothTotalVariance(strikes, rawIVs []float64, T float64) []float64 {
	smoothed := append([]float64(nil), rawIVs...)

	var validIdx []int
	for i, iv := range rawIVs {
		if iv > 1.5 {
			validIdx = append(validIdx, i)
		}
	}
	if len(validIdx) < 5 {
		return smoothed
	}

	K := make([]float64, len(validIdx))
	w := make([]float64, len(validIdx))
	for j, i := range validIdx {
		K[j] = strikes[i]
		w[j] = (rawIVs[i] / 100) * (rawIVs[i] / 100) * T
	}

	// A natural cubic spline interpolant evaluated at its own knots
	// reproduces the input exactly, so the fit collapses to w itself; the
	// smoothing work happens in the convex hull projection below.
	hullK, hullW := lowerConvexHull(K, w)

	for j, i := range validIdx {
		wAtK := interpolateHull(hullK, hullW, K[j])
		if wAtK <= 0 {
			continue // keep raw value
		}
		smoothed[i] = chain.Round(chain.Sanitize(
			math.Sqrt(math.Max(0, wAtK/T))*100,
		), 5)
	}

	return smoothed
}

// lowerConvexHull returns the lower convex hull of (x, y) points, x sorted
// ascending, using the cross-product monotone-chain test: retain left
// turns, pop right turns.
func lowerConvexHull(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if n <= 2 {
		return append([]float64(nil), x...), append([]float64(nil), y...)
	}

	hx := make([]float64, 0, n)
	hy := make([]float64, 0, n)
	cross := func(ox, oy, ax, ay, bx, by float64) float64 {
		return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
	}
	for i := 0; i < n; i++ {
		for len(hx) >= 2 && cross(hx[len(hx)-2], hy[len(hy)-2], hx[len(hx)-1], hy[len(hy)-1], x[i], y[i]) <= 0 {
			hx = hx[:len(hx)-1]
			hy = hy[:len(hy)-1]
		}
		hx = append(hx, x[i])
		hy = append(hy, y[i])
	}
	return hx, hy
}

// interpolateHull linearly interpolates the piecewise-linear hull at k.
func interpolateHull(hx, hy []float64, k float64) float64 {
	if len(hx) == 0 {
		return 0
	}
	if k <= hx[0] {
		return hy[0]
	}
	if k >= hx[len(hx)-1] {
		return hy[len(hx)-1]
	}
	for i := 0; i < len(hx)-1; i++ {
		if k >= hx[i] && k <= hx[i+1] {
			if hx[i+1] == hx[i] {
				return hy[i]
			}
			frac := (k - hx[i]) / (hx[i+1] - hx[i])
			return hy[i] + frac*(hy[i+1]-hy[i])
		}
	}
	return hy[len(hy)-1]
}

// GetIVForStrike performs an exact-match lookup of the smoothed IV for a
// given expiration/type/strike, returning 0 if no surface or strike matches.
func GetIVForStrike(surfaces []IVSurface, expiration string, optType chain.OptionType, strike float64) float64 {
	for _, s := range surfaces {
		if s.Expiration != expiration || s.OptionType != optType {
			continue
		}
		for i, k := range s.Strikes {
			if k == strike {
				return s.SmoothedIVs[i]
			}
		}
	}
	return 0
}
