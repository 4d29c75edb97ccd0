package varswap

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/chain"
)

func mkOpt(strike float64, ot chain.OptionType, bid, ask float64, expMS int64) chain.NormalizedOption {
	return chain.NormalizedOption{Strike: strike, OptionType: ot, Bid: bid, Ask: ask, ExpirationTimestamp: expMS}
}

func TestVarianceSwapSymmetricFixture(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 30*chain.MSPerDay

	var opts []chain.NormalizedOption
	spot := 500.0
	for i := -5; i <= 5; i++ {
		strike := spot + float64(i)*10
		// mids decay linearly away from spot, symmetric
		dist := float64(i)
		if dist < 0 {
			dist = -dist
		}
		m := 20.0 - dist*2
		if m < 0.5 {
			m = 0.5
		}
		// out-of-the-money legs only: calls at or above spot, puts at or below
		if strike >= spot {
			opts = append(opts, mkOpt(strike, chain.Call, m-0.1, m+0.1, expMS))
		}
		if strike <= spot {
			opts = append(opts, mkOpt(strike, chain.Put, m-0.1, m+0.1, expMS))
		}
	}

	res := ComputeVarianceSwapIVAt(opts, spot, 0.02, asOf)

	if res.Forward < spot-1 || res.Forward > spot+1 {
		t.Fatalf("forward out of expected band: %f", res.Forward)
	}
	if res.IV <= 0 || res.IV >= 2 {
		t.Fatalf("iv out of expected band: %f", res.IV)
	}
	if res.NumStrikes == 0 {
		t.Fatalf("expected nonzero contributing strikes")
	}
	if res.PutContribution <= 0 || res.CallContribution <= 0 {
		t.Fatalf("expected both contributions positive: put=%f call=%f", res.PutContribution, res.CallContribution)
	}
}

func TestVarianceSwapEmptyInput(t *testing.T) {
	res := ComputeVarianceSwapIVAt(nil, 100, 0.02, 0)
	if res.IV != 0 || res.Forward != 100 || res.K0 != 100 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestVarianceSwapPastExpiryIsEmpty(t *testing.T) {
	opts := []chain.NormalizedOption{mkOpt(100, chain.Call, 1, 2, -1000)}
	res := ComputeVarianceSwapIVAt(opts, 100, 0.02, 0)
	if res.IV != 0 {
		t.Fatalf("expected empty result for past expiry")
	}
}

func TestTwoTermInterpolationSameExpiryReturnsNearUnchanged(t *testing.T) {
	near := VarianceSwapResult{IV: 0.2, T: 30.0 / 365}
	far := VarianceSwapResult{IV: 0.3, T: 30.0 / 365}
	res := ComputeImpliedVolatility(near, 1000, &far, 1000, nil)
	if res.IV != near.IV {
		t.Fatalf("expected near IV unchanged, got %f", res.IV)
	}
}

func TestTwoTermInterpolationNilFar(t *testing.T) {
	near := VarianceSwapResult{IV: 0.25, T: 20.0 / 365}
	res := ComputeImpliedVolatility(near, 1000, nil, 0, nil)
	if res.IV != near.IV {
		t.Fatalf("expected near IV unchanged with nil far")
	}
}
