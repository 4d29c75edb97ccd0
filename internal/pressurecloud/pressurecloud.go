// Package pressurecloud derives stability/acceleration zones, regime
// transition edges, and per-futures-product hedge contract estimates from
// a hedge-impulse curve. It walks outward from a pivot index until a
// threshold condition fails, applied to impulse basins and peaks instead
// of price bars.
package pressurecloud

import (
	"math"
	"sort"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/hedgeimpulse"
	"github.com/contactkeval/optionscan/internal/regime"
)

// Config holds the tunable parameters for reach range, zone filtering, and
// legacy contract multiplier.
type Config struct {
	ContractMultiplier   float64
	ReachabilityMultiple float64
	ZoneThreshold        float64
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{ContractMultiplier: 20, ReachabilityMultiple: 2.0, ZoneThreshold: 0.15}
}

func (c Config) normalized() Config {
	if c.ContractMultiplier <= 0 {
		c.ContractMultiplier = 20
	}
	if c.ReachabilityMultiple <= 0 {
		c.ReachabilityMultiple = 2.0
	}
	if c.ZoneThreshold <= 0 {
		c.ZoneThreshold = 0.15
	}
	return c
}

const (
	nqMultiplier  = 20.0
	mnqMultiplier = 2.0
	esMultiplier  = 50.0
	mesMultiplier = 5.0
)

// Level is the per-grid-price pressure reading.
type Level struct {
	Price                  float64
	Proximity              float64
	StabilityScore         float64
	AccelerationScore      float64
	HedgeType              string // "passive" or "aggressive"
	NQContracts            float64
	MNQContracts           float64
	ESContracts            float64
	MESContracts           float64
	ExpectedHedgeContracts float64
}

// Zone is a contiguous price band of stabilizing or accelerating dealer
// hedging pressure.
type Zone struct {
	Center    float64
	Low       float64
	High      float64
	Strength  float64
	Side      string // "above-spot" or "below-spot"
	TradeType string // "long" or "short"
	HedgeType string // "passive" or "aggressive"
}

// RegimeEdge marks a zero-crossing price as a stability transition.
type RegimeEdge struct {
	Price      float64
	Transition string
}

// Cloud is the full pressure-cloud output for one expiration.
type Cloud struct {
	Levels            []Level
	StabilityZones    []Zone
	AccelerationZones []Zone
	RegimeEdges       []RegimeEdge
}

// ComputePressureCloud builds the pressure cloud for one hedge-impulse
// curve and its regime context.
func ComputePressureCloud(curve hedgeimpulse.Curve, rp regime.Params, cfg Config) Cloud {
	cfg = cfg.normalized()
	spot := curve.Spot
	if spot <= 0 || len(curve.Points) == 0 {
		return Cloud{}
	}

	reach := rp.ExpectedDailySpotMove * spot * cfg.ReachabilityMultiple
	if reach <= 0 {
		reach = spot * 0.01 * cfg.ReachabilityMultiple
	}

	levels := make([]Level, len(curve.Points))
	for i, p := range curve.Points {
		proximity := math.Exp(-math.Pow(math.Abs(p.Price-spot)/reach, 2))
		stability := math.Max(0, p.Impulse) * proximity
		acceleration := math.Max(0, -p.Impulse) * proximity
		hedgeType := "passive"
		if p.Impulse < 0 {
			hedgeType = "aggressive"
		}
		levels[i] = Level{
			Price:                  p.Price,
			Proximity:              chain.Sanitize(proximity),
			StabilityScore:         chain.Sanitize(stability),
			AccelerationScore:      chain.Sanitize(acceleration),
			HedgeType:              hedgeType,
			NQContracts:            chain.Sanitize(p.Impulse / (nqMultiplier * spot * 0.01)),
			MNQContracts:           chain.Sanitize(p.Impulse / (mnqMultiplier * spot * 0.01)),
			ESContracts:            chain.Sanitize(p.Impulse / (esMultiplier * spot * 0.01)),
			MESContracts:           chain.Sanitize(p.Impulse / (mesMultiplier * spot * 0.01)),
			ExpectedHedgeContracts: chain.Sanitize(p.Impulse / (cfg.ContractMultiplier * spot * 0.01)),
		}
	}

	stabilityZones := buildZones(curve.Points, curve.Basins, spot, reach, cfg.ZoneThreshold, "passive")
	accelerationZones := buildZones(curve.Points, curve.Peaks, spot, reach, cfg.ZoneThreshold, "aggressive")

	var edges []RegimeEdge
	for _, zc := range curve.ZeroCrossings {
		below := zc.Price < spot
		var transition string
		switch {
		case zc.Direction == "falling" && below:
			transition = "stable-to-unstable"
		case zc.Direction == "falling" && !below:
			transition = "unstable-to-stable"
		case zc.Direction == "rising" && below:
			transition = "unstable-to-stable"
		default: // rising, above spot
			transition = "stable-to-unstable"
		}
		edges = append(edges, RegimeEdge{Price: zc.Price, Transition: transition})
	}

	return Cloud{
		Levels:            levels,
		StabilityZones:    stabilityZones,
		AccelerationZones: accelerationZones,
		RegimeEdges:       edges,
	}
}

func buildZones(points []hedgeimpulse.CurvePoint, extrema []hedgeimpulse.Extremum, spot, reach, threshold float64, hedgeType string) []Zone {
	if len(extrema) == 0 {
		return nil
	}

	maxAbs := 0.0
	for _, e := range extrema {
		if a := math.Abs(e.Impulse); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return nil
	}

	var zones []Zone
	for _, e := range extrema {
		proximity := math.Exp(-math.Pow(math.Abs(e.Price-spot)/reach, 2))
		rawStrength := (math.Abs(e.Impulse) / maxAbs) * proximity
		if rawStrength < threshold {
			continue
		}

		idx := nearestIndex(points, e.Price)
		half := math.Abs(e.Impulse) / 2
		lowIdx := idx
		for lowIdx > 0 && math.Abs(points[lowIdx-1].Impulse) >= half {
			lowIdx--
		}
		highIdx := idx
		for highIdx < len(points)-1 && math.Abs(points[highIdx+1].Impulse) >= half {
			highIdx++
		}

		side := "below-spot"
		if e.Price >= spot {
			side = "above-spot"
		}

		var tradeType string
		if hedgeType == "passive" {
			if side == "below-spot" {
				tradeType = "long"
			} else {
				tradeType = "short"
			}
		} else {
			if side == "below-spot" {
				tradeType = "short"
			} else {
				tradeType = "long"
			}
		}

		strength := rawStrength
		if strength > 1 {
			strength = 1
		}

		zones = append(zones, Zone{
			Center:    e.Price,
			Low:       points[lowIdx].Price,
			High:      points[highIdx].Price,
			Strength:  chain.Sanitize(strength),
			Side:      side,
			TradeType: tradeType,
			HedgeType: hedgeType,
		})
	}

	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Strength > zones[j].Strength })
	return zones
}

func nearestIndex(points []hedgeimpulse.CurvePoint, price float64) int {
	best := 0
	bestDist := math.Abs(points[0].Price - price)
	for i := 1; i < len(points); i++ {
		d := math.Abs(points[i].Price - price)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
