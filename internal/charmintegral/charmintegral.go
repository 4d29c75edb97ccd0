// Package charmintegral projects total dealer charm exposure across a
// discrete minute-bucket grid to expiration, modeling how the expected
// time-decay-driven hedge flow accumulates as the session winds down. It
// walks fixed-size time steps accumulating into a running total, applied
// here to minutes-to-expiry instead of bar timestamps.
package charmintegral

import (
	"math"
	"sort"
	"time"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/exposure"
)

// Config holds the tunable bucket size.
type Config struct {
	TimeStepMinutes float64
}

// DefaultConfig returns the documented default time step.
func DefaultConfig() Config {
	return Config{TimeStepMinutes: 15}
}

func (c Config) normalized() Config {
	if c.TimeStepMinutes <= 0 {
		c.TimeStepMinutes = 15
	}
	return c
}

// StrikeContribution is one strike's share of total charm exposure.
type StrikeContribution struct {
	Strike          float64
	CharmExposure   float64
	FractionOfTotal float64
}

// Bucket is one minute-step sample of the charm decay projection.
type Bucket struct {
	MinutesRemaining float64
	InstantaneousCEX float64
	CumulativeCEX    float64
}

// Result is the full charm-integral output for one expiration.
type Result struct {
	TotalCharmToClose   float64
	Direction           string // "buying", "selling", "neutral"
	StrikeContributions []StrikeContribution
	Buckets             []Bucket
}

// ComputeCharmIntegral projects charm flow for one expiration's exposure
// row, as of now.
func ComputeCharmIntegral(exposuresFlat exposure.ExposureModeBreakdown, cfg Config) Result {
	return ComputeCharmIntegralAt(exposuresFlat, cfg, time.Now().UnixMilli())
}

// ComputeCharmIntegralAt is the deterministic, testable variant taking an
// explicit "as of" timestamp in epoch ms.
func ComputeCharmIntegralAt(exposuresFlat exposure.ExposureModeBreakdown, cfg Config, asOfMillis int64) Result {
	cfg = cfg.normalized()

	contributions := strikeContributions(exposuresFlat.StrikeExposures)

	minutesRemaining := float64(exposuresFlat.ExpirationTimestamp-asOfMillis) / 60000
	if minutesRemaining < 0 {
		minutesRemaining = 0
	}
	if minutesRemaining == 0 {
		return Result{Direction: "neutral", StrikeContributions: contributions}
	}

	totalCEX := exposuresFlat.TotalCharmExposure

	floor := math.Max(1, cfg.TimeStepMinutes)
	var buckets []Bucket
	cumulative := 0.0
	for t := minutesRemaining; t >= floor; t -= cfg.TimeStepMinutes {
		timeScaling := math.Sqrt(minutesRemaining / t)
		instant := totalCEX * timeScaling
		contribution := instant * (cfg.TimeStepMinutes / chain.MinutesPerDaySession)
		cumulative += contribution
		buckets = append(buckets, Bucket{
			MinutesRemaining: chain.Sanitize(t),
			InstantaneousCEX: chain.Sanitize(instant),
			CumulativeCEX:    chain.Sanitize(cumulative),
		})
	}

	totalCharmToClose := 0.0
	if len(buckets) > 0 {
		totalCharmToClose = buckets[len(buckets)-1].CumulativeCEX
	}

	direction := "neutral"
	switch {
	case totalCharmToClose > 0:
		direction = "buying"
	case totalCharmToClose < 0:
		direction = "selling"
	}

	return Result{
		TotalCharmToClose:   chain.Sanitize(totalCharmToClose),
		Direction:           direction,
		StrikeContributions: contributions,
		Buckets:             buckets,
	}
}

func strikeContributions(rows []exposure.StrikeExposure) []StrikeContribution {
	var sumAbs float64
	for _, r := range rows {
		if r.CharmExposure == 0 {
			continue
		}
		sumAbs += math.Abs(r.CharmExposure)
	}

	var out []StrikeContribution
	for _, r := range rows {
		if r.CharmExposure == 0 {
			continue
		}
		fraction := 0.0
		if sumAbs > 0 {
			fraction = math.Abs(r.CharmExposure) / sumAbs
		}
		out = append(out, StrikeContribution{
			Strike:          r.Strike,
			CharmExposure:   r.CharmExposure,
			FractionOfTotal: chain.Sanitize(fraction),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].CharmExposure) > math.Abs(out[j].CharmExposure)
	})
	return out
}
