// Package volresponse fits a ridge-stabilized linear response of implied
// volatility changes to spot returns and realized/implied vol levels, via
// Gauss-Jordan elimination with partial pivoting over the 5x5 normal
// equations. Each observation is built from the current snapshot and the
// previous observation only; the caller keeps the observation history. No
// off-the-shelf dense linear-algebra library is wired (see DESIGN.md).
package volresponse

import (
	"math"

	"github.com/contactkeval/optionscan/internal/chain"
)

// RawObservation is one snapshot of implied/realized vol and spot.
type RawObservation struct {
	IV        float64
	RV        float64
	Spot      float64
	Timestamp int64
}

// Observation is a RawObservation enriched with the deltas used as
// regressors and response in the z-score fit.
type Observation struct {
	IV            float64
	RV            float64
	Spot          float64
	Timestamp     int64
	DeltaIV       float64
	SpotReturn    float64
	AbsSpotReturn float64
}

// BuildVolResponseObservation enriches a raw snapshot with the deltas
// computed against the previous observation. If previous is nil, the
// deltas are zero (nothing to compare against yet).
func BuildVolResponseObservation(current RawObservation, previous *Observation) Observation {
	obs := Observation{
		IV:        current.IV,
		RV:        current.RV,
		Spot:      current.Spot,
		Timestamp: current.Timestamp,
	}
	if previous == nil || previous.Spot <= 0 || current.Spot <= 0 {
		return obs
	}
	obs.DeltaIV = chain.Sanitize(current.IV - previous.IV)
	obs.SpotReturn = chain.Sanitize(math.Log(current.Spot / previous.Spot))
	obs.AbsSpotReturn = math.Abs(obs.SpotReturn)
	return obs
}

// Config tunes the minimum sample size and signal thresholds.
type Config struct {
	MinObservations     int
	VolBidThreshold     float64
	VolOfferedThreshold float64
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{MinObservations: 30, VolBidThreshold: 1.5, VolOfferedThreshold: -1.5}
}

func (c Config) normalized() Config {
	if c.MinObservations <= 0 {
		c.MinObservations = 30
	}
	if c.VolBidThreshold == 0 {
		c.VolBidThreshold = 1.5
	}
	if c.VolOfferedThreshold == 0 {
		c.VolOfferedThreshold = -1.5
	}
	return c
}

const ridgeLambda = 1e-8
const numRegressors = 5 // intercept, return, |return|, RV, IV

// Result is the fitted model and its last-observation forecast.
type Result struct {
	Signal          string // "insufficient_data", "singular_fit", "vol_bid", "vol_offered", "neutral"
	BetaIntercept   float64
	BetaReturn      float64
	BetaAbsReturn   float64
	BetaRV          float64
	BetaIV          float64
	R2              float64
	ResidualStdDev  float64
	ExpectedDeltaIV float64
	ObservedDeltaIV float64
	Residual        float64
	ZScore          float64
	Timestamp       int64
}

// ComputeVolResponseZScore fits the ridge-stabilized OLS model over
// observations (must be timestamp-monotonic; the caller's responsibility)
// and scores the most recent observation against it.
func ComputeVolResponseZScore(observations []Observation, cfg Config) Result {
	cfg = cfg.normalized()
	n := len(observations)

	if n == 0 {
		return Result{Signal: "insufficient_data"}
	}
	last := observations[n-1]

	if n < cfg.MinObservations {
		return Result{Signal: "insufficient_data", ObservedDeltaIV: last.DeltaIV, Timestamp: last.Timestamp}
	}

	X := make([][]float64, n)
	y := make([]float64, n)
	for i, o := range observations {
		X[i] = []float64{1, o.SpotReturn, o.AbsSpotReturn, o.RV, o.IV}
		y[i] = o.DeltaIV
	}

	xtx := make([][]float64, numRegressors)
	xty := make([]float64, numRegressors)
	for i := 0; i < numRegressors; i++ {
		xtx[i] = make([]float64, numRegressors)
		for j := 0; j < numRegressors; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += X[k][i] * X[k][j]
			}
			xtx[i][j] = sum
		}
		for k := 0; k < n; k++ {
			xty[i] += X[k][i] * y[k]
		}
	}
	for i := 1; i < numRegressors; i++ {
		xtx[i][i] += ridgeLambda
	}

	beta, ok := gaussJordanSolve(xtx, xty)
	if !ok {
		return Result{Signal: "singular_fit", ObservedDeltaIV: last.DeltaIV, Timestamp: last.Timestamp}
	}

	var sse, meanY, sst float64
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		predicted := dot(X[i], beta)
		r := y[i] - predicted
		residuals[i] = r
		sse += r * r
		sst += (y[i] - meanY) * (y[i] - meanY)
	}

	r2 := 0.0
	if sst > 0 {
		r2 = math.Max(0, 1-sse/sst)
	}
	residualStdDev := math.Sqrt(sse / math.Max(float64(n-numRegressors), 1))

	lastX := []float64{1, last.SpotReturn, last.AbsSpotReturn, last.RV, last.IV}
	expected := dot(lastX, beta)
	residual := last.DeltaIV - expected
	zScore := 0.0
	if residualStdDev != 0 {
		zScore = residual / residualStdDev
	}

	signal := "neutral"
	switch {
	case zScore > cfg.VolBidThreshold:
		signal = "vol_bid"
	case zScore < cfg.VolOfferedThreshold:
		signal = "vol_offered"
	}

	return Result{
		Signal:          signal,
		BetaIntercept:   chain.Sanitize(beta[0]),
		BetaReturn:      chain.Sanitize(beta[1]),
		BetaAbsReturn:   chain.Sanitize(beta[2]),
		BetaRV:          chain.Sanitize(beta[3]),
		BetaIV:          chain.Sanitize(beta[4]),
		R2:              chain.Sanitize(r2),
		ResidualStdDev:  chain.Sanitize(residualStdDev),
		ExpectedDeltaIV: chain.Sanitize(expected),
		ObservedDeltaIV: chain.Sanitize(last.DeltaIV),
		Residual:        chain.Sanitize(residual),
		ZScore:          chain.Sanitize(zScore),
		Timestamp:       last.Timestamp,
	}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// gaussJordanSolve solves Ax=b via Gauss-Jordan elimination with partial
// pivoting. Returns false if any pivot magnitude falls below 1e-14
// (treated as a singular system).
func gaussJordanSolve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = append(append([]float64(nil), a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivotRow := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > maxAbs {
				maxAbs = v
				pivotRow = r
			}
		}
		if maxAbs < 1e-14 {
			return nil, false
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		pivot := aug[col][col]
		for c := col; c <= n; c++ {
			aug[col][c] /= pivot
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = aug[i][n]
	}
	return x, true
}
