// Package exposure computes per-strike dealer gamma/vanna/charm exposure
// in three variants (canonical, state-weighted, flow-delta) and the
// shares-needed-to-cover inverse.
//
// The leg-aggregation loop accumulates buy/sell sign flips into a running
// total, applied here to per-strike dealer OI exposure rather than
// per-leg notional, following the same strike-grouped,
// sanitize-to-zero accumulator shape used by other risk-exposure
// aggregators.
package exposure

import (
	"math"
	"sort"
	"time"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/ivsurface"
	"github.com/contactkeval/optionscan/internal/pricing"
)

// StrikeExposure is the per-strike exposure row for one mode.
type StrikeExposure struct {
	Strike        float64
	GammaExposure float64
	VannaExposure float64
	CharmExposure float64
	NetExposure   float64
}

// ExposureModeBreakdown is the aggregated view for one exposure mode
// (canonical, state-weighted, or flow-delta). It is also the "flat shape"
// consumed directly by hedgeimpulse and charmintegral.
type ExposureModeBreakdown struct {
	Spot                float64
	Expiration          string
	ExpirationTimestamp int64
	TotalGammaExposure float64
	TotalVannaExposure float64
	TotalCharmExposure float64
	TotalNetExposure   float64

	MaxGammaStrike, MinGammaStrike float64
	MaxVannaStrike, MinVannaStrike float64
	MaxCharmStrike, MinCharmStrike float64
	MaxNetStrike, MinNetStrike     float64

	StrikeExposures []StrikeExposure // sorted by NetExposure descending
}

// ExposureVariantsPerExpiry bundles the three mode breakdowns for one
// future expiration.
type ExposureVariantsPerExpiry struct {
	Spot                float64
	Expiration          string
	ExpirationTimestamp int64
	Canonical           ExposureModeBreakdown
	StateWeighted       ExposureModeBreakdown
	FlowDelta           ExposureModeBreakdown
}

type strikePair struct {
	strike float64
	call   *chain.NormalizedOption
	put    *chain.NormalizedOption
}

// CalculateGammaVannaCharmExposures computes exposure breakdowns for every
// future expiration in the chain, as of now.
func CalculateGammaVannaCharmExposures(oc chain.OptionChain, ivSurfaces []ivsurface.IVSurface) []ExposureVariantsPerExpiry {
	return CalculateGammaVannaCharmExposuresAt(oc, ivSurfaces, time.Now().UnixMilli())
}

// CalculateGammaVannaCharmExposuresAt is the deterministic, testable
// variant taking an explicit "as of" timestamp in epoch ms.
func CalculateGammaVannaCharmExposuresAt(oc chain.OptionChain, ivSurfaces []ivsurface.IVSurface, asOfMillis int64) []ExposureVariantsPerExpiry {
	type expKey struct {
		expiration string
		expMS      int64
	}
	byExpiry := map[expKey]map[float64]*strikePair{}
	var order []expKey

	for i := range oc.Options {
		o := &oc.Options[i]
		k := expKey{expiration: o.Expiration, expMS: o.ExpirationTimestamp}
		strikes, ok := byExpiry[k]
		if !ok {
			strikes = map[float64]*strikePair{}
			byExpiry[k] = strikes
			order = append(order, k)
		}
		sp, ok := strikes[o.Strike]
		if !ok {
			sp = &strikePair{strike: o.Strike}
			strikes[o.Strike] = sp
		}
		if o.OptionType == chain.Call {
			sp.call = o
		} else {
			sp.put = o
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].expMS < order[j].expMS })

	var out []ExposureVariantsPerExpiry
	for _, k := range order {
		if k.expMS < asOfMillis {
			continue // pruned: expiration in the past
		}
		strikesMap := byExpiry[k]
		var strikes []float64
		for s, sp := range strikesMap {
			if sp.call == nil || sp.put == nil {
				continue // requires both legs present
			}
			strikes = append(strikes, s)
		}
		if len(strikes) == 0 {
			continue
		}
		sort.Float64s(strikes)

		T := float64(k.expMS-asOfMillis) / float64(chain.MSPerYear)
		daysToExpiry := T * chain.DaysPerYear
		if daysToExpiry < 0 {
			daysToExpiry = 0
		}

		var canonical, stateWeighted, flowDelta []StrikeExposure

		for _, s := range strikes {
			sp := strikesMap[s]
			callIV := resolveIV(ivSurfaces, k.expiration, chain.Call, s, sp.call.ImpliedVolatility)
			putIV := resolveIV(ivSurfaces, k.expiration, chain.Put, s, sp.put.ImpliedVolatility)

			callGreeks := pricing.Greeks(chain.BSParams{Spot: oc.Spot, Strike: s, TimeToExpiry: T, Volatility: callIV, RiskFreeRate: oc.RiskFreeRate, DividendYield: oc.DividendYield, OptionType: chain.Call})
			putGreeks := pricing.Greeks(chain.BSParams{Spot: oc.Spot, Strike: s, TimeToExpiry: T, Volatility: putIV, RiskFreeRate: oc.RiskFreeRate, DividendYield: oc.DividendYield, OptionType: chain.Put})

			oiC, oiP := sp.call.OpenInterest, sp.put.OpenInterest

			gammaC := rowGamma(oiC, oiP, callGreeks.Gamma, putGreeks.Gamma, oc.Spot)
			vannaC := rowVanna(oiC, oiP, callGreeks.Vanna, putGreeks.Vanna, oc.Spot)
			charmC := rowCharm(oiC, oiP, callGreeks.Charm, putGreeks.Charm, oc.Spot)
			canonical = append(canonical, makeRow(s, gammaC, vannaC, charmC))

			ivLevel := (callIV + putIV) / 2
			swVanna := vannaC * ivLevel
			swCharm := charmC * daysToExpiry
			stateWeighted = append(stateWeighted, makeRow(s, gammaC, swVanna, swCharm))

			posC := flowPosition(sp.call)
			posP := flowPosition(sp.put)
			gammaF := rowGamma(posC, posP, callGreeks.Gamma, putGreeks.Gamma, oc.Spot)
			vannaF := rowVanna(posC, posP, callGreeks.Vanna, putGreeks.Vanna, oc.Spot)
			charmF := rowCharm(posC, posP, callGreeks.Charm, putGreeks.Charm, oc.Spot)
			flowDelta = append(flowDelta, makeRow(s, gammaF, vannaF, charmF))
		}

		out = append(out, ExposureVariantsPerExpiry{
			Spot:                oc.Spot,
			Expiration:          k.expiration,
			ExpirationTimestamp: k.expMS,
			Canonical:           buildBreakdown(oc.Spot, k.expiration, k.expMS, canonical),
			StateWeighted:       buildBreakdown(oc.Spot, k.expiration, k.expMS, stateWeighted),
			FlowDelta:           buildBreakdown(oc.Spot, k.expiration, k.expMS, flowDelta),
		})
	}

	return out
}

func resolveIV(surfaces []ivsurface.IVSurface, expiration string, optType chain.OptionType, strike float64, fallbackDecimal float64) float64 {
	ivPct := ivsurface.GetIVForStrike(surfaces, expiration, optType, strike)
	if ivPct <= 0 || math.IsNaN(ivPct) || math.IsInf(ivPct, 0) {
		return fallbackDecimal
	}
	return ivPct / 100
}

func rowGamma(oiC, oiP, gammaC, gammaP, spot float64) float64 {
	return chain.Sanitize((-oiC*gammaC + oiP*gammaP) * spot * spot * 0.01 * 100)
}

func rowVanna(oiC, oiP, vannaC, vannaP, spot float64) float64 {
	return chain.Sanitize((-oiC*vannaC + oiP*vannaP) * spot * 100 * 0.01)
}

func rowCharm(oiC, oiP, charmC, charmP, spot float64) float64 {
	return chain.Sanitize((-oiC*charmC + oiP*charmP) * spot * 100)
}

func flowPosition(o *chain.NormalizedOption) float64 {
	if o.LiveOpenInterest == nil {
		return 0
	}
	return chain.Sanitize(*o.LiveOpenInterest - o.OpenInterest)
}

func makeRow(strike, gamma, vanna, charm float64) StrikeExposure {
	gamma, vanna, charm = chain.Sanitize(gamma), chain.Sanitize(vanna), chain.Sanitize(charm)
	return StrikeExposure{
		Strike:        strike,
		GammaExposure: gamma,
		VannaExposure: vanna,
		CharmExposure: charm,
		NetExposure:   chain.Sanitize(gamma + vanna + charm),
	}
}

func buildBreakdown(spot float64, expiration string, expMS int64, rows []StrikeExposure) ExposureModeBreakdown {
	b := ExposureModeBreakdown{Spot: spot, Expiration: expiration, ExpirationTimestamp: expMS}
	for _, r := range rows {
		b.TotalGammaExposure += r.GammaExposure
		b.TotalVannaExposure += r.VannaExposure
		b.TotalCharmExposure += r.CharmExposure
		b.TotalNetExposure += r.NetExposure
	}
	b.TotalGammaExposure = chain.Sanitize(b.TotalGammaExposure)
	b.TotalVannaExposure = chain.Sanitize(b.TotalVannaExposure)
	b.TotalCharmExposure = chain.Sanitize(b.TotalCharmExposure)
	b.TotalNetExposure = chain.Sanitize(b.TotalNetExposure)

	b.MinGammaStrike, b.MaxGammaStrike = minMaxStrike(rows, func(r StrikeExposure) float64 { return r.GammaExposure })
	b.MinVannaStrike, b.MaxVannaStrike = minMaxStrike(rows, func(r StrikeExposure) float64 { return r.VannaExposure })
	b.MinCharmStrike, b.MaxCharmStrike = minMaxStrike(rows, func(r StrikeExposure) float64 { return r.CharmExposure })
	b.MinNetStrike, b.MaxNetStrike = minMaxStrike(rows, func(r StrikeExposure) float64 { return r.NetExposure })

	sorted := append([]StrikeExposure(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NetExposure > sorted[j].NetExposure })
	b.StrikeExposures = sorted

	return b
}

func minMaxStrike(rows []StrikeExposure, metric func(StrikeExposure) float64) (minStrike, maxStrike float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	sorted := append([]StrikeExposure(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return metric(sorted[i]) < metric(sorted[j]) })
	return sorted[0].Strike, sorted[len(sorted)-1].Strike
}

// ShareCoverResult is the output of CalculateSharesNeededToCover.
type ShareCoverResult struct {
	Action        string // "BUY" or "SELL"; "" for degenerate inputs
	Shares        float64
	ImpliedMove   float64 // percent
	ResultingSpot float64
}

// CalculateSharesNeededToCover inverts net dealer exposure into a share
// quantity and implied spot move.
func CalculateSharesNeededToCover(sharesOutstanding, totalNet, spot float64) ShareCoverResult {
	if spot == 0 || sharesOutstanding == 0 || math.IsNaN(totalNet) || math.IsInf(totalNet, 0) {
		return ShareCoverResult{ResultingSpot: spot}
	}

	action := "BUY"
	if totalNet > 0 {
		action = "SELL"
	}

	shares := math.Abs(-totalNet / spot)
	impliedMove := (-totalNet / spot) / sharesOutstanding * 100
	resultingSpot := spot * (1 + impliedMove/100)

	return ShareCoverResult{
		Action:        action,
		Shares:        chain.Sanitize(shares),
		ImpliedMove:   chain.Sanitize(impliedMove),
		ResultingSpot: chain.Sanitize(resultingSpot),
	}
}
