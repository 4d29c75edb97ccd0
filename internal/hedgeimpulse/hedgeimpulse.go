// Package hedgeimpulse builds the Gaussian-kernel-smoothed hedge-impulse
// curve across a price grid around spot. It accumulates a weighted sum
// and weight total and divides at the end, applied here as a
// kernel-weighted strike smoother instead of a time window.
package hedgeimpulse

import (
	"math"
	"sort"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/exposure"
	"github.com/contactkeval/optionscan/internal/ivsurface"
	"github.com/contactkeval/optionscan/internal/regime"
)

// Config holds the tunable parameters for the impulse grid and kernel.
type Config struct {
	RangePercent       float64
	StepPercent        float64
	KernelWidthStrikes float64
}

// DefaultConfig returns the documented default grid parameters.
func DefaultConfig() Config {
	return Config{RangePercent: 3, StepPercent: 0.05, KernelWidthStrikes: 2}
}

func (c Config) normalized() Config {
	if c.RangePercent <= 0 {
		c.RangePercent = 3
	}
	if c.StepPercent <= 0 {
		c.StepPercent = 0.05
	}
	if c.KernelWidthStrikes <= 0 {
		c.KernelWidthStrikes = 2
	}
	return c
}

// CurvePoint is one sample of the impulse grid.
type CurvePoint struct {
	Price   float64
	Gamma   float64
	Vanna   float64
	Impulse float64
}

// ZeroCrossing is a sign change in the impulse curve.
type ZeroCrossing struct {
	Price     float64
	Direction string // "rising" or "falling"
}

// Extremum is a strictly-interior local max ("basin") or local min ("peak").
type Extremum struct {
	Price   float64
	Impulse float64
	Kind    string // "basin" or "peak"
}

// Asymmetry summarizes impulse integral imbalance around spot.
type Asymmetry struct {
	UpsideIntegral   float64
	DownsideIntegral float64
	Bias             string // "up", "down", "neutral"
	AsymmetryRatio   float64
}

// Curve is the full hedge-impulse output for one expiration.
type Curve struct {
	Spot                  float64
	Points                []CurvePoint
	ImpulseAtSpot         float64
	SlopeAtSpot           float64
	ZeroCrossings         []ZeroCrossing
	Basins                []Extremum
	Peaks                 []Extremum
	Asymmetry             Asymmetry
	Regime                string
	NearestAttractorAbove *float64
	NearestAttractorBelow *float64
}

// ComputeHedgeImpulseCurve builds the impulse curve for one expiration's
// exposure row.
func ComputeHedgeImpulseCurve(exposuresFlat exposure.ExposureModeBreakdown, surface ivsurface.IVSurface, cfg Config) Curve {
	cfg = cfg.normalized()
	spot := exposuresFlat.Spot
	if spot <= 0 || len(exposuresFlat.StrikeExposures) == 0 {
		return Curve{}
	}

	rp := regime.DeriveRegimeParams(surface, spot)

	lambda := cfg.KernelWidthStrikes * modalSpacing(exposuresFlat.StrikeExposures)
	if lambda <= 0 {
		lambda = cfg.KernelWidthStrikes
	}

	k := clamp(-rp.ImpliedSpotVolCorr*rp.ATMIV*math.Sqrt(252), 2, 20)

	step := spot * cfg.StepPercent / 100
	start := spot * (1 - cfg.RangePercent/100)
	n := int(math.Floor((2*cfg.RangePercent)/cfg.StepPercent)) + 1

	points := make([]CurvePoint, n)
	for i := 0; i < n; i++ {
		price := start + float64(i)*step
		gamma := kernelSmooth(exposuresFlat.StrikeExposures, price, lambda, func(s exposure.StrikeExposure) float64 { return s.GammaExposure })
		vanna := kernelSmooth(exposuresFlat.StrikeExposures, price, lambda, func(s exposure.StrikeExposure) float64 { return s.VannaExposure })
		impulse := gamma
		if price != 0 {
			impulse = gamma - (k/price)*vanna
		}
		points[i] = CurvePoint{Price: price, Gamma: chain.Sanitize(gamma), Vanna: chain.Sanitize(vanna), Impulse: chain.Sanitize(impulse)}
	}

	impulseAtSpot := interpolateCurve(points, spot)
	slopeAtSpot := 0.0
	if step > 0 {
		slopeAtSpot = chain.Sanitize((interpolateCurve(points, spot+step) - interpolateCurve(points, spot-step)) / (2 * step))
	}

	crossings := zeroCrossings(points)
	basins, peaks := extrema(points)
	asym := computeAsymmetry(points, spot, step)
	reg := classifyRegime(impulseAtSpot, points, asym)

	return Curve{
		Spot:                  spot,
		Points:                points,
		ImpulseAtSpot:         impulseAtSpot,
		SlopeAtSpot:           slopeAtSpot,
		ZeroCrossings:         crossings,
		Basins:                basins,
		Peaks:                 peaks,
		Asymmetry:             asym,
		Regime:                reg,
		NearestAttractorAbove: nearestAbove(basins, spot),
		NearestAttractorBelow: nearestBelow(basins, spot),
	}
}

func modalSpacing(rows []exposure.StrikeExposure) float64 {
	strikes := make([]float64, len(rows))
	for i, r := range rows {
		strikes[i] = r.Strike
	}
	sort.Float64s(strikes)

	counts := map[float64]int{}
	var order []float64
	for i := 1; i < len(strikes); i++ {
		gap := chain.Round(strikes[i]-strikes[i-1], 2)
		if gap <= 0 {
			continue
		}
		if _, ok := counts[gap]; !ok {
			order = append(order, gap)
		}
		counts[gap]++
	}
	if len(order) == 0 {
		return 1
	}
	best := order[0]
	for _, g := range order[1:] {
		if counts[g] > counts[best] {
			best = g
		}
	}
	return best
}

func kernelSmooth(rows []exposure.StrikeExposure, price, lambda float64, value func(exposure.StrikeExposure) float64) float64 {
	var wSum, wvSum float64
	for _, r := range rows {
		d := (r.Strike - price) / lambda
		w := math.Exp(-(d * d))
		wSum += w
		wvSum += w * value(r)
	}
	if wSum == 0 {
		return 0
	}
	return wvSum / wSum
}

func interpolateCurve(points []CurvePoint, price float64) float64 {
	n := len(points)
	if n == 0 {
		return 0
	}
	if price <= points[0].Price {
		return points[0].Impulse
	}
	if price >= points[n-1].Price {
		return points[n-1].Impulse
	}
	for i := 0; i < n-1; i++ {
		if price >= points[i].Price && price <= points[i+1].Price {
			x0, x1 := points[i].Price, points[i+1].Price
			if x1 == x0 {
				return points[i].Impulse
			}
			frac := (price - x0) / (x1 - x0)
			return points[i].Impulse + frac*(points[i+1].Impulse-points[i].Impulse)
		}
	}
	return points[n-1].Impulse
}

func zeroCrossings(points []CurvePoint) []ZeroCrossing {
	var out []ZeroCrossing
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if a.Impulse == 0 || b.Impulse == 0 || (a.Impulse > 0) == (b.Impulse > 0) {
			continue // no sign change
		}
		frac := -a.Impulse / (b.Impulse - a.Impulse)
		price := a.Price + frac*(b.Price-a.Price)
		direction := "falling"
		if b.Impulse > a.Impulse {
			direction = "rising"
		}
		out = append(out, ZeroCrossing{Price: price, Direction: direction})
	}
	return out
}

func extrema(points []CurvePoint) (basins, peaks []Extremum) {
	for i := 1; i < len(points)-1; i++ {
		prev, cur, next := points[i-1], points[i], points[i+1]
		if cur.Impulse > prev.Impulse && cur.Impulse > next.Impulse && cur.Impulse > 0 {
			basins = append(basins, Extremum{Price: cur.Price, Impulse: cur.Impulse, Kind: "basin"})
		}
		if cur.Impulse < prev.Impulse && cur.Impulse < next.Impulse && cur.Impulse < 0 {
			peaks = append(peaks, Extremum{Price: cur.Price, Impulse: cur.Impulse, Kind: "peak"})
		}
	}
	return basins, peaks
}

func computeAsymmetry(points []CurvePoint, spot, step float64) Asymmetry {
	upHi := spot + 0.005*spot
	downLo := spot - 0.005*spot

	var upside, downside float64
	for _, p := range points {
		if p.Price > spot && p.Price <= upHi {
			upside += p.Impulse * step
		}
		if p.Price >= downLo && p.Price < spot {
			downside += p.Impulse * step
		}
	}

	m := math.Max(math.Abs(upside), math.Abs(downside))
	bias := "neutral"
	if upside < downside-0.1*m {
		bias = "up"
	} else if downside < upside-0.1*m {
		bias = "down"
	}

	ratio := math.Abs(upside) / math.Max(math.Abs(downside), 1e-10)

	return Asymmetry{
		UpsideIntegral:   chain.Sanitize(upside),
		DownsideIntegral: chain.Sanitize(downside),
		Bias:             bias,
		AsymmetryRatio:   chain.Sanitize(ratio),
	}
}

func classifyRegime(impulseAtSpot float64, points []CurvePoint, asym Asymmetry) string {
	var sum float64
	for _, p := range points {
		sum += math.Abs(p.Impulse)
	}
	mean := 0.0
	if len(points) > 0 {
		mean = sum / float64(len(points))
	}
	if mean == 0 {
		return "neutral"
	}
	norm := impulseAtSpot / mean

	squeezeFor := func() string {
		switch asym.Bias {
		case "up":
			return "squeeze-up"
		case "down":
			return "squeeze-down"
		default:
			return "expansion"
		}
	}

	switch {
	case norm > 0.5:
		return "pinned"
	case norm < -0.3:
		return squeezeFor()
	case asym.AsymmetryRatio > 1.5:
		if asym.Bias == "up" {
			return "squeeze-up"
		}
		if asym.Bias == "down" {
			return "squeeze-down"
		}
		return "neutral"
	default:
		return "neutral"
	}
}

func nearestAbove(basins []Extremum, spot float64) *float64 {
	var best *float64
	for _, b := range basins {
		if b.Price > spot && (best == nil || b.Price < *best) {
			p := b.Price
			best = &p
		}
	}
	return best
}

func nearestBelow(basins []Extremum, spot float64) *float64 {
	var best *float64
	for _, b := range basins {
		if b.Price < spot && (best == nil || b.Price > *best) {
			p := b.Price
			best = &p
		}
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
