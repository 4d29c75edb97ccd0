// Package pricing implements the Black-Scholes-Merton pricer, its full
// Greeks, and bisection implied-volatility inversion.
//
// The d1/d2 computation follows the standard zero-as-degenerate-input
// convention. The IV solver uses bisection rather than Newton-Raphson
// because it must converge for arbitrarily skewed strikes across an
// entire chain without a vega-based step.
package pricing

import (
	"math"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/stats"
)

// degenerate reports whether the BS inputs fall outside the domain where
// price/Greeks are defined; all Greeks and price are zero in that case.
func degenerate(p chain.BSParams) bool {
	return p.Volatility <= 0 || p.Spot <= 0 || p.TimeToExpiry <= 0
}

// Price returns the Black-Scholes-Merton price, rounded to 2 decimals.
func Price(p chain.BSParams) float64 {
	if degenerate(p) {
		return 0
	}
	d1, d2 := d1d2(p)
	discQ := math.Exp(-p.DividendYield * p.TimeToExpiry)
	discR := math.Exp(-p.RiskFreeRate * p.TimeToExpiry)

	var price float64
	if p.OptionType == chain.Put {
		price = p.Strike*discR*stats.CumulativeNormalDistribution(-d2) - p.Spot*discQ*stats.CumulativeNormalDistribution(-d1)
	} else {
		price = p.Spot*discQ*stats.CumulativeNormalDistribution(d1) - p.Strike*discR*stats.CumulativeNormalDistribution(d2)
	}
	return chain.Round(chain.Sanitize(price), 2)
}

func d1d2(p chain.BSParams) (float64, float64) {
	sqrtT := math.Sqrt(p.TimeToExpiry)
	d1 := (math.Log(p.Spot/p.Strike) + (p.RiskFreeRate-p.DividendYield+0.5*p.Volatility*p.Volatility)*p.TimeToExpiry) / (p.Volatility * sqrtT)
	d2 := d1 - p.Volatility*sqrtT
	return d1, d2
}

// Greeks computes the full 13-field Greeks bundle. Price is rounded to 2
// decimals; every other field to 5. Theta/Charm are reported per day;
// Vega/Rho are reported per one-percentage-point vol/rate move.
func Greeks(p chain.BSParams) chain.Greeks {
	if degenerate(p) {
		return chain.Greeks{}
	}

	isCall := p.OptionType != chain.Put
	sqrtT := math.Sqrt(p.TimeToExpiry)
	sigma := p.Volatility
	S, K, T, r, q := p.Spot, p.Strike, p.TimeToExpiry, p.RiskFreeRate, p.DividendYield

	d1, d2 := d1d2(p)
	N := stats.CumulativeNormalDistribution
	pdf := stats.NormalPDF(d1)
	discQ := math.Exp(-q * T)
	discR := math.Exp(-r * T)

	price := Price(p)

	var delta float64
	if isCall {
		delta = discQ * N(d1)
	} else {
		delta = discQ * (N(d1) - 1)
	}

	gamma := discQ * pdf / (S * sigma * sqrtT)

	vegaUnscaled := S * discQ * sqrtT * pdf
	vega := vegaUnscaled * 0.01

	var thetaAnnual float64
	common := -(S * discQ * pdf * sigma) / (2 * sqrtT)
	if isCall {
		thetaAnnual = common - r*K*discR*N(d2) + q*S*discQ*N(d1)
	} else {
		thetaAnnual = common + r*K*discR*N(-d2) - q*S*discQ*N(-d1)
	}
	theta := thetaAnnual / chain.DaysPerYear

	var rhoAnnual float64
	if isCall {
		rhoAnnual = K * T * discR * N(d2)
	} else {
		rhoAnnual = -K * T * discR * N(-d2)
	}
	rho := rhoAnnual * 0.01

	vanna := -discQ * pdf * d2 / sigma

	charmCommon := discQ * pdf * (2*(r-q)*T - d2*sigma*sqrtT) / (2 * T * sigma * sqrtT)
	var charmAnnual float64
	if isCall {
		charmAnnual = q*discQ*N(d1) - charmCommon
	} else {
		charmAnnual = -q*discQ*N(-d1) - charmCommon
	}
	charm := charmAnnual / chain.DaysPerYear

	volga := vegaUnscaled * d1 * d2 / sigma

	speed := -gamma / S * (d1/(sigma*sqrtT) + 1)

	zomma := gamma * (d1*d2 - 1) / sigma

	color := -discQ * pdf / (2 * S * T * sigma * sqrtT) *
		(2*q*T + 1 + (2*(r-q)*T-d2*sigma*sqrtT)/(sigma*sqrtT)*d1)

	ultima := -vegaUnscaled / (sigma * sigma) * (d1*d2*(1-d1*d2) + d1*d1 + d2*d2)

	return chain.Greeks{
		Price:  price,
		Delta:  chain.Round(chain.Sanitize(delta), 5),
		Gamma:  chain.Round(chain.Sanitize(gamma), 5),
		Theta:  chain.Round(chain.Sanitize(theta), 5),
		Vega:   chain.Round(chain.Sanitize(vega), 5),
		Rho:    chain.Round(chain.Sanitize(rho), 5),
		Vanna:  chain.Round(chain.Sanitize(vanna), 5),
		Charm:  chain.Round(chain.Sanitize(charm), 5),
		Volga:  chain.Round(chain.Sanitize(volga), 5),
		Speed:  chain.Round(chain.Sanitize(speed), 5),
		Zomma:  chain.Round(chain.Sanitize(zomma), 5),
		Color:  chain.Round(chain.Sanitize(color), 5),
		Ultima: chain.Round(chain.Sanitize(ultima), 5),
	}
}

// ImpliedVolatility bisects over sigma in [1e-4, 5.0] to find the vol that
// reproduces the observed price. Returns the vol as a percentage (sigma*100).
// If the observed price is at or below intrinsic + 0.01, returns 1.0
// (the 1% floor) rather than bisecting a degenerate bracket.
func ImpliedVolatility(price, S, K, r, q, t float64, optType chain.OptionType) float64 {
	if price <= 0 || S <= 0 || K <= 0 || t <= 0 || !finite(price, S, K, r, q, t) {
		return 0
	}

	var intrinsic float64
	if optType == chain.Put {
		intrinsic = math.Max(0, K-S)
	} else {
		intrinsic = math.Max(0, S-K)
	}
	if price <= intrinsic+0.01 {
		return 1.0
	}

	lo, hi := 1e-4, 5.0
	bsAt := func(sigma float64) float64 {
		return Price(chain.BSParams{
			Spot: S, Strike: K, TimeToExpiry: t, Volatility: sigma,
			RiskFreeRate: r, DividendYield: q, OptionType: optType,
		})
	}

	plo, phi := bsAt(lo), bsAt(hi)
	if price <= plo {
		return chain.Round(lo*100, 5)
	}
	if price >= phi {
		return chain.Round(hi*100, 5)
	}

	mid := (lo + hi) / 2
	for i := 0; i < 100; i++ {
		mid = (lo + hi) / 2
		pm := bsAt(mid)
		diff := pm - price
		if math.Abs(diff) < 1e-6 {
			break
		}
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return chain.Round(mid*100, 5)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
