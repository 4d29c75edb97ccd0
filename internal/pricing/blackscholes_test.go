package pricing

import (
	"math"
	"testing"

	"github.com/contactkeval/optionscan/internal/chain"
)

func TestPriceATMCallPut(t *testing.T) {
	call := Price(chain.BSParams{Spot: 100, Strike: 100, TimeToExpiry: 1, Volatility: 0.20, RiskFreeRate: 0.05, OptionType: chain.Call})
	put := Price(chain.BSParams{Spot: 100, Strike: 100, TimeToExpiry: 1, Volatility: 0.20, RiskFreeRate: 0.05, OptionType: chain.Put})

	if call < 10.45 || call > 10.46 {
		t.Fatalf("call price out of range: %f", call)
	}
	if put < 5.57 || put > 5.58 {
		t.Fatalf("put price out of range: %f", put)
	}
}

func TestPutCallParity(t *testing.T) {
	params := chain.BSParams{Spot: 120, Strike: 110, TimeToExpiry: 0.75, Volatility: 0.3, RiskFreeRate: 0.04, DividendYield: 0.01}
	call := Price(chain.BSParams{Spot: params.Spot, Strike: params.Strike, TimeToExpiry: params.TimeToExpiry, Volatility: params.Volatility, RiskFreeRate: params.RiskFreeRate, DividendYield: params.DividendYield, OptionType: chain.Call})
	put := Price(chain.BSParams{Spot: params.Spot, Strike: params.Strike, TimeToExpiry: params.TimeToExpiry, Volatility: params.Volatility, RiskFreeRate: params.RiskFreeRate, DividendYield: params.DividendYield, OptionType: chain.Put})

	lhs := call - put
	rhs := params.Spot*math.Exp(-params.DividendYield*params.TimeToExpiry) - params.Strike*math.Exp(-params.RiskFreeRate*params.TimeToExpiry)
	if math.Abs(lhs-rhs) > 1e-2 {
		t.Fatalf("put-call parity violated: lhs=%f rhs=%f", lhs, rhs)
	}
}

func TestGammaVegaTypeIndependent(t *testing.T) {
	base := chain.BSParams{Spot: 95, Strike: 100, TimeToExpiry: 0.5, Volatility: 0.22, RiskFreeRate: 0.03, DividendYield: 0.0}
	callP := base
	callP.OptionType = chain.Call
	putP := base
	putP.OptionType = chain.Put

	cg := Greeks(callP)
	pg := Greeks(putP)

	if math.Abs(cg.Gamma-pg.Gamma) > 1e-4 {
		t.Fatalf("gamma mismatch: call=%f put=%f", cg.Gamma, pg.Gamma)
	}
	if math.Abs(cg.Vega-pg.Vega) > 1e-4 {
		t.Fatalf("vega mismatch: call=%f put=%f", cg.Vega, pg.Vega)
	}
}

func TestATMCallGreeksSanity(t *testing.T) {
	g := Greeks(chain.BSParams{Spot: 100, Strike: 100, TimeToExpiry: 0.25, Volatility: 0.20, RiskFreeRate: 0.05, OptionType: chain.Call})
	if g.Delta <= 0.5 || g.Delta >= 0.65 {
		t.Fatalf("delta out of expected band: %f", g.Delta)
	}
	if g.Gamma <= 0 {
		t.Fatalf("expected positive gamma, got %f", g.Gamma)
	}
	if g.Theta >= 0 {
		t.Fatalf("expected negative theta, got %f", g.Theta)
	}
	if g.Vega <= 0 {
		t.Fatalf("expected positive vega, got %f", g.Vega)
	}
	if g.Rho <= 0 {
		t.Fatalf("expected positive rho, got %f", g.Rho)
	}
}

func TestDegenerateInputsAreZero(t *testing.T) {
	g := Greeks(chain.BSParams{Spot: 100, Strike: 100, TimeToExpiry: 0, Volatility: 0.2, OptionType: chain.Call})
	if g != (chain.Greeks{}) {
		t.Fatalf("expected zero greeks for t=0, got %+v", g)
	}
	if Price(chain.BSParams{Spot: 0, Strike: 100, TimeToExpiry: 1, Volatility: 0.2, OptionType: chain.Call}) != 0 {
		t.Fatalf("expected zero price for zero spot")
	}
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	sigmas := []float64{0.05, 0.2, 0.5, 1.0, 1.5}
	ts := []float64{0.01, 0.25, 1.0, 2.0}
	for _, sigma := range sigmas {
		for _, tt := range ts {
			for _, ot := range []chain.OptionType{chain.Call, chain.Put} {
				p := Price(chain.BSParams{Spot: 100, Strike: 105, TimeToExpiry: tt, Volatility: sigma, RiskFreeRate: 0.03, DividendYield: 0.01, OptionType: ot})
				iv := ImpliedVolatility(p, 100, 105, 0.03, 0.01, tt, ot)
				if math.Abs(iv-sigma*100) > 0.1 {
					t.Fatalf("round trip failed sigma=%f t=%f type=%s got iv=%f", sigma, tt, ot, iv)
				}
			}
		}
	}
}

func TestImpliedVolatilityDegenerateReturnsZero(t *testing.T) {
	if iv := ImpliedVolatility(0, 100, 100, 0.01, 0, 1, chain.Call); iv != 0 {
		t.Fatalf("expected 0 for non-positive price, got %f", iv)
	}
}
