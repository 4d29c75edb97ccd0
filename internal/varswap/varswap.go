// Package varswap computes the CBOE model-free implied variance for one
// expiration and the two-term VIX-style interpolation to a target
// maturity. The strike-pairing, sort-and-walk, and delta-K bracketing
// style follows the same sorted bracketing idiom used elsewhere in the
// pipeline, applied here to strikes instead of dates.
package varswap

import (
	"math"
	"sort"
	"time"

	"github.com/contactkeval/optionscan/internal/chain"
)

// VarianceSwapResult is the per-expiration CBOE variance-swap output.
type VarianceSwapResult struct {
	IV               float64 // decimal
	Forward          float64
	K0               float64
	NumStrikes       int
	PutContribution  float64
	CallContribution float64
	T                float64 // years
}

type pair struct {
	strike   float64
	call     *chain.NormalizedOption
	put      *chain.NormalizedOption
}

func mid(o *chain.NormalizedOption) float64 {
	if o == nil || o.Bid <= 0 || o.Ask <= 0 {
		return 0
	}
	return (o.Bid + o.Ask) / 2
}

func hasZeroBid(o *chain.NormalizedOption) bool {
	return o == nil || o.Bid <= 0
}

func empty(spot float64) VarianceSwapResult {
	return VarianceSwapResult{IV: 0, Forward: spot, K0: spot}
}

// ComputeVarianceSwapIV computes the variance-swap IV for one expiration
// as of now. options must all share the same expiration.
func ComputeVarianceSwapIV(options []chain.NormalizedOption, spot, r float64) VarianceSwapResult {
	return ComputeVarianceSwapIVAt(options, spot, r, time.Now().UnixMilli())
}

// ComputeVarianceSwapIVAt is the deterministic, testable variant of
// ComputeVarianceSwapIV taking an explicit "as of" timestamp in epoch ms.
func ComputeVarianceSwapIVAt(options []chain.NormalizedOption, spot, r float64, asOfMillis int64) VarianceSwapResult {
	if len(options) == 0 {
		return empty(spot)
	}

	expMS := options[0].ExpirationTimestamp
	T := float64(expMS-asOfMillis) / float64(chain.MSPerYear)
	if T <= 0 {
		return empty(spot)
	}

	byStrike := map[float64]*pair{}
	for i := range options {
		o := &options[i]
		p, ok := byStrike[o.Strike]
		if !ok {
			p = &pair{strike: o.Strike}
			byStrike[o.Strike] = p
		}
		if o.OptionType == chain.Call {
			p.call = o
		} else {
			p.put = o
		}
	}

	strikes := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	if len(strikes) == 0 {
		return empty(spot)
	}

	deltaK := make([]float64, len(strikes))
	for i := range strikes {
		switch {
		case len(strikes) == 1:
			deltaK[i] = 1
		case i == 0:
			deltaK[i] = strikes[1] - strikes[0]
		case i == len(strikes)-1:
			deltaK[i] = strikes[i] - strikes[i-1]
		default:
			deltaK[i] = (strikes[i+1] - strikes[i-1]) / 2
		}
	}

	// select K0: minimizes |callMid - putMid| among strikes with both mids positive.
	k0Idx := -1
	bestDiff := math.MaxFloat64
	for i, k := range strikes {
		pr := byStrike[k]
		cm, pm := mid(pr.call), mid(pr.put)
		if cm <= 0 || pm <= 0 {
			continue
		}
		diff := math.Abs(cm - pm)
		if diff < bestDiff {
			bestDiff = diff
			k0Idx = i
		}
	}
	if k0Idx == -1 {
		return empty(spot)
	}
	K0 := strikes[k0Idx]
	k0pair := byStrike[K0]
	callAtK0, putAtK0 := mid(k0pair.call), mid(k0pair.put)
	discR := math.Exp(r * T)
	forward := K0 + discR*(callAtK0-putAtK0)

	sum := 0.0
	numStrikes := 0
	putContribution := 0.0
	callContribution := 0.0

	// at K0 itself: average of call and put mid, split across both buckets.
	q0 := (callAtK0 + putAtK0) / 2
	term0 := (deltaK[k0Idx] / (K0 * K0)) * discR * q0
	sum += term0
	putContribution += term0 / 2
	callContribution += term0 / 2
	numStrikes++

	// walk downward (puts), terminate on two consecutive zero-bid puts.
	zeroRun := 0
	for i := k0Idx - 1; i >= 0; i-- {
		k := strikes[i]
		p := byStrike[k].put
		if hasZeroBid(p) {
			zeroRun++
			if zeroRun >= 2 {
				break
			}
			continue
		}
		zeroRun = 0
		q := mid(p)
		if q <= 0 {
			continue
		}
		term := (deltaK[i] / (k * k)) * discR * q
		sum += term
		putContribution += term
		numStrikes++
	}

	// walk upward (calls), terminate on two consecutive zero-bid calls.
	zeroRun = 0
	for i := k0Idx + 1; i < len(strikes); i++ {
		k := strikes[i]
		c := byStrike[k].call
		if hasZeroBid(c) {
			zeroRun++
			if zeroRun >= 2 {
				break
			}
			continue
		}
		zeroRun = 0
		q := mid(c)
		if q <= 0 {
			continue
		}
		term := (deltaK[i] / (k * k)) * discR * q
		sum += term
		callContribution += term
		numStrikes++
	}

	sigma2 := (2/T)*sum - math.Pow(forward/K0-1, 2)/T
	if sigma2 < 0 {
		sigma2 = 0
	}

	return VarianceSwapResult{
		IV:               chain.Sanitize(math.Sqrt(sigma2)),
		Forward:          chain.Sanitize(forward),
		K0:               K0,
		NumStrikes:       numStrikes,
		PutContribution:  chain.Sanitize(putContribution),
		CallContribution: chain.Sanitize(callContribution),
		T:                T,
	}
}

// ImpliedVolatilityResult is the two-term VIX-style interpolation output.
type ImpliedVolatilityResult struct {
	IV         float64 // decimal, annualized to TargetDays
	Near       VarianceSwapResult
	Far        *VarianceSwapResult
	TargetDays float64
}

// ComputeImpliedVolatility interpolates between a near-term and (optional)
// far-term variance-swap result to a target maturity in days (defaults to
// 30, the CBOE VIX convention). If far is nil, or the two expirations are
// within 1ms of each other, the near-term result is returned unchanged.
func ComputeImpliedVolatility(near VarianceSwapResult, nearExpiryMS int64, far *VarianceSwapResult, farExpiryMS int64, targetDays *float64) ImpliedVolatilityResult {
	td := 30.0
	if targetDays != nil {
		td = *targetDays
	}

	if far == nil || math.Abs(float64(farExpiryMS-nearExpiryMS)) < 1 {
		return ImpliedVolatilityResult{IV: near.IV, Near: near, Far: far, TargetDays: td}
	}

	n1 := near.T * chain.DaysPerYear
	n2 := far.T * chain.DaysPerYear
	if math.Abs(n2-n1) < 1e-9 {
		return ImpliedVolatilityResult{IV: near.IV, Near: near, Far: far, TargetDays: td}
	}

	w1 := (n2 - td) / (n2 - n1)
	w2 := (td - n1) / (n2 - n1)

	interpVar := (near.T*near.IV*near.IV*w1 + far.T*far.IV*far.IV*w2) * (chain.DaysPerYear / td)
	if interpVar < 0 {
		interpVar = 0
	}

	return ImpliedVolatilityResult{
		IV:         chain.Sanitize(math.Sqrt(interpVar)),
		Near:       near,
		Far:        far,
		TargetDays: td,
	}
}
