package hedgeimpulse

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/exposure"
	"github.com/contactkeval/optionscan/internal/ivsurface"
)

func TestComputeHedgeImpulseCurveGridSize(t *testing.T) {
	cfg := DefaultConfig()
	flat := exposure.ExposureModeBreakdown{
		Spot: 100,
		StrikeExposures: []exposure.StrikeExposure{
			{Strike: 98, GammaExposure: 1000, VannaExposure: 50},
			{Strike: 100, GammaExposure: 2000, VannaExposure: 20},
			{Strike: 102, GammaExposure: 1500, VannaExposure: -40},
		},
	}
	surface := ivsurface.IVSurface{Strikes: []float64{98, 100, 102}, SmoothedIVs: []float64{20, 19, 20}}

	curve := ComputeHedgeImpulseCurve(flat, surface, cfg)

	expectedN := 121 // floor(2*3/0.05)+1
	if len(curve.Points) != expectedN {
		t.Fatalf("expected %d grid points, got %d", expectedN, len(curve.Points))
	}

	atSpot := interpolateCurve(curve.Points, flat.Spot)
	if diff := atSpot - curve.ImpulseAtSpot; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("impulseAtSpot mismatch: %f vs %f", atSpot, curve.ImpulseAtSpot)
	}
}

func TestComputeHedgeImpulseCurveEmptyOnZeroSpot(t *testing.T) {
	curve := ComputeHedgeImpulseCurve(exposure.ExposureModeBreakdown{}, ivsurface.IVSurface{}, DefaultConfig())
	if len(curve.Points) != 0 {
		t.Fatalf("expected empty curve for zero spot")
	}
}

func TestComputeHedgeImpulseCurveBasinAndPeak(t *testing.T) {
	flat := exposure.ExposureModeBreakdown{
		Spot: 100,
		StrikeExposures: []exposure.StrikeExposure{
			{Strike: 99, GammaExposure: 5000, VannaExposure: 0},
			{Strike: 101.5, GammaExposure: 0, VannaExposure: -5000},
		},
	}
	surface := ivsurface.IVSurface{Strikes: []float64{99, 101.5}, SmoothedIVs: []float64{18, 22}}
	cfg := Config{RangePercent: 3, StepPercent: 0.1, KernelWidthStrikes: 1}

	curve := ComputeHedgeImpulseCurve(flat, surface, cfg)
	if len(curve.ZeroCrossings) == 0 {
		t.Fatalf("expected at least one zero crossing between basin and peak regions")
	}
}

func TestZeroCrossingsDetectsSignChange(t *testing.T) {
	points := []CurvePoint{
		{Price: 99, Impulse: -1},
		{Price: 100, Impulse: 1},
		{Price: 101, Impulse: 1},
		{Price: 102, Impulse: -1},
	}
	crossings := zeroCrossings(points)
	if len(crossings) != 2 {
		t.Fatalf("expected 2 crossings, got %d", len(crossings))
	}
	if crossings[0].Direction != "rising" || crossings[1].Direction != "falling" {
		t.Fatalf("unexpected crossing directions: %+v", crossings)
	}
}
