package exposure

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/ivsurface"
)

func mkLeg(strike float64, ot chain.OptionType, oi float64, liveOI *float64, iv float64, expMS int64) chain.NormalizedOption {
	return chain.NormalizedOption{
		Strike: strike, OptionType: ot, OpenInterest: oi, LiveOpenInterest: liveOI,
		ImpliedVolatility: iv, ExpirationTimestamp: expMS, Expiration: "2025-06-20",
		Bid: 1, Ask: 1.2, Mark: 1.1,
	}
}

func TestCalculateGammaVannaCharmExposuresSixOptionFixture(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 30*chain.MSPerDay

	oc := chain.OptionChain{Spot: 100, RiskFreeRate: 0.03, DividendYield: 0}
	for _, s := range []float64{95, 100, 105} {
		oc.Options = append(oc.Options,
			mkLeg(s, chain.Call, 500, nil, 0.2, expMS),
			mkLeg(s, chain.Put, 300, nil, 0.22, expMS),
		)
	}

	rows := CalculateGammaVannaCharmExposuresAt(oc, nil, asOf)
	if len(rows) != 1 {
		t.Fatalf("expected 1 expiration row, got %d", len(rows))
	}
	row := rows[0]
	if row.Expiration != "2025-06-20" {
		t.Fatalf("unexpected expiration: %s", row.Expiration)
	}
	if len(row.Canonical.StrikeExposures) != 3 {
		t.Fatalf("expected 3 strikes, got %d", len(row.Canonical.StrikeExposures))
	}

	// canonical and flow-delta should differ (flow-delta has no live OI -> zero position)
	if row.FlowDelta.TotalGammaExposure != 0 {
		t.Fatalf("expected zero flow-delta gamma with no live OI, got %f", row.FlowDelta.TotalGammaExposure)
	}
	if row.Canonical.TotalGammaExposure == 0 {
		t.Fatalf("expected nonzero canonical gamma exposure")
	}

	// strike exposures must be sorted by net exposure descending
	for i := 1; i < len(row.Canonical.StrikeExposures); i++ {
		if row.Canonical.StrikeExposures[i].NetExposure > row.Canonical.StrikeExposures[i-1].NetExposure {
			t.Fatalf("strike exposures not sorted descending by net")
		}
	}
}

func TestCalculateGammaVannaCharmExposuresFlowDeltaUsesLiveOI(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 30*chain.MSPerDay
	live := 700.0

	oc := chain.OptionChain{Spot: 100, RiskFreeRate: 0.03}
	oc.Options = []chain.NormalizedOption{
		mkLeg(100, chain.Call, 500, &live, 0.2, expMS),
		mkLeg(100, chain.Put, 300, nil, 0.22, expMS),
	}

	rows := CalculateGammaVannaCharmExposuresAt(oc, nil, asOf)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row")
	}
	if rows[0].FlowDelta.TotalGammaExposure == 0 {
		t.Fatalf("expected nonzero flow-delta gamma when live OI present")
	}
}

func TestCalculateGammaVannaCharmExposuresPrunesPastExpirations(t *testing.T) {
	asOf := int64(1_000_000)
	oc := chain.OptionChain{Spot: 100, RiskFreeRate: 0.03}
	oc.Options = []chain.NormalizedOption{
		mkLeg(100, chain.Call, 500, nil, 0.2, asOf-1000),
		mkLeg(100, chain.Put, 300, nil, 0.22, asOf-1000),
	}

	rows := CalculateGammaVannaCharmExposuresAt(oc, nil, asOf)
	if len(rows) != 0 {
		t.Fatalf("expected expired options pruned, got %d rows", len(rows))
	}
}

func TestCalculateGammaVannaCharmExposuresRequiresBothLegs(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 30*chain.MSPerDay
	oc := chain.OptionChain{Spot: 100, RiskFreeRate: 0.03}
	oc.Options = []chain.NormalizedOption{
		mkLeg(100, chain.Call, 500, nil, 0.2, expMS),
		mkLeg(105, chain.Call, 500, nil, 0.2, expMS), // no matching put
	}

	rows := CalculateGammaVannaCharmExposuresAt(oc, nil, asOf)
	if len(rows) != 0 {
		t.Fatalf("expected no rows when strikes lack both legs, got %d", len(rows))
	}
}

func TestCalculateGammaVannaCharmExposuresResolvesSurfaceIV(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 30*chain.MSPerDay
	oc := chain.OptionChain{Spot: 100, RiskFreeRate: 0.03}
	oc.Options = []chain.NormalizedOption{
		mkLeg(100, chain.Call, 500, nil, 0.2, expMS),
		mkLeg(100, chain.Put, 300, nil, 0.22, expMS),
	}
	surfaces := []ivsurface.IVSurface{
		{Expiration: "2025-06-20", OptionType: chain.Call, Strikes: []float64{100}, SmoothedIVs: []float64{25}},
		{Expiration: "2025-06-20", OptionType: chain.Put, Strikes: []float64{100}, SmoothedIVs: []float64{27}},
	}

	rowsWithSurface := CalculateGammaVannaCharmExposuresAt(oc, surfaces, asOf)
	rowsWithoutSurface := CalculateGammaVannaCharmExposuresAt(oc, nil, asOf)

	if rowsWithSurface[0].Canonical.TotalGammaExposure == rowsWithoutSurface[0].Canonical.TotalGammaExposure {
		t.Fatalf("expected surface IV to change the gamma exposure result")
	}
}

func TestCalculateSharesNeededToCoverSignsAndDegenerate(t *testing.T) {
	sell := CalculateSharesNeededToCover(1_000_000, 5_000_000, 100)
	if sell.Action != "SELL" {
		t.Fatalf("expected SELL for positive net exposure, got %s", sell.Action)
	}
	buy := CalculateSharesNeededToCover(1_000_000, -5_000_000, 100)
	if buy.Action != "BUY" {
		t.Fatalf("expected BUY for negative net exposure, got %s", buy.Action)
	}
	zeroSpot := CalculateSharesNeededToCover(1_000_000, 5_000_000, 0)
	if zeroSpot.Shares != 0 || zeroSpot.Action != "" {
		t.Fatalf("expected degenerate result for zero spot, got %+v", zeroSpot)
	}
}
