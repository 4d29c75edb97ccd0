package charmintegral

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/exposure"
)

func TestComputeCharmIntegralCumulativeMatchesTotal(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 120*60000 // 120 minutes remaining

	flat := exposure.ExposureModeBreakdown{
		ExpirationTimestamp: expMS,
		TotalCharmExposure:  -50000,
		StrikeExposures: []exposure.StrikeExposure{
			{Strike: 95, CharmExposure: -30000},
			{Strike: 100, CharmExposure: -20000},
			{Strike: 105, CharmExposure: 0},
		},
	}

	res := ComputeCharmIntegralAt(flat, DefaultConfig(), asOf)

	if len(res.Buckets) == 0 {
		t.Fatalf("expected nonzero buckets")
	}
	last := res.Buckets[len(res.Buckets)-1]
	if last.CumulativeCEX != res.TotalCharmToClose {
		t.Fatalf("expected last bucket cumulativeCEX to equal totalCharmToClose: %f vs %f", last.CumulativeCEX, res.TotalCharmToClose)
	}
	if res.Direction != "selling" {
		t.Fatalf("expected selling direction for negative charm exposure, got %s", res.Direction)
	}

	// strike with zero charm must be dropped
	if len(res.StrikeContributions) != 2 {
		t.Fatalf("expected 2 nonzero strike contributions, got %d", len(res.StrikeContributions))
	}
	// sorted by |charmExposure| descending
	if res.StrikeContributions[0].Strike != 95 {
		t.Fatalf("expected strike 95 first (largest |charm|), got %f", res.StrikeContributions[0].Strike)
	}
}

func TestComputeCharmIntegralZeroMinutesRemaining(t *testing.T) {
	asOf := int64(1000)
	flat := exposure.ExposureModeBreakdown{ExpirationTimestamp: 500, TotalCharmExposure: 1000}
	res := ComputeCharmIntegralAt(flat, DefaultConfig(), asOf)
	if res.TotalCharmToClose != 0 || res.Direction != "neutral" || len(res.Buckets) != 0 {
		t.Fatalf("expected empty result when expiration has passed, got %+v", res)
	}
}

func TestComputeCharmIntegralPositiveExposureBuys(t *testing.T) {
	asOf := int64(0)
	expMS := asOf + 60*60000
	flat := exposure.ExposureModeBreakdown{
		ExpirationTimestamp: expMS,
		TotalCharmExposure:  10000,
		StrikeExposures:     []exposure.StrikeExposure{{Strike: 100, CharmExposure: 10000}},
	}
	res := ComputeCharmIntegralAt(flat, Config{TimeStepMinutes: 15}, asOf)
	if res.Direction != "buying" {
		t.Fatalf("expected buying direction, got %s", res.Direction)
	}
	if len(res.Buckets) != 4 {
		t.Fatalf("expected 4 buckets (60/15), got %d", len(res.Buckets))
	}
}
