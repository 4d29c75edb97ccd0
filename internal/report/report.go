// Package report writes a pipeline run's results to disk as JSON and CSV,
// using encoding/json and encoding/csv and an outdir/filename convention
// keyed on underlying and run ID.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contactkeval/optionscan/internal/charmintegral"
	"github.com/contactkeval/optionscan/internal/exposure"
	"github.com/contactkeval/optionscan/internal/hedgeimpulse"
	"github.com/contactkeval/optionscan/internal/pressurecloud"
	"github.com/contactkeval/optionscan/internal/regime"
	"github.com/contactkeval/optionscan/internal/volresponse"
)

// ExpirationResult bundles every stage's output for one expiration.
type ExpirationResult struct {
	Expiration    string
	Exposures     exposure.ExposureVariantsPerExpiry
	Regime        regime.Params
	HedgeImpulse  hedgeimpulse.Curve
	PressureCloud pressurecloud.Cloud
	CharmIntegral charmintegral.Result
}

// RunResult is the full output of one pipeline run against one underlying.
type RunResult struct {
	RunID       string
	Underlying  string
	Spot        float64
	GeneratedAt int64
	Expirations []ExpirationResult
	VolResponse volresponse.Result
}

// WriteJSON writes the full run result as indented JSON to
// outdir/<underlying>-<runID>.json.
func WriteJSON(res *RunResult, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal run result: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", res.Underlying, res.RunID)
	return os.WriteFile(filepath.Join(outdir, name), b, 0644)
}

// WriteExposureCSV writes one row per strike across every expiration's
// canonical exposure breakdown to outdir/<underlying>-<runID>-exposure.csv.
func WriteExposureCSV(res *RunResult, outdir string) error {
	name := fmt.Sprintf("%s-%s-exposure.csv", res.Underlying, res.RunID)
	f, err := os.Create(filepath.Join(outdir, name))
	if err != nil {
		return fmt.Errorf("report: create exposure csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"expiration", "strike", "gamma_exposure", "vanna_exposure", "charm_exposure", "net_exposure"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, exp := range res.Expirations {
		for _, s := range exp.Exposures.Canonical.StrikeExposures {
			row := []string{
				exp.Expiration,
				fmt.Sprintf("%.2f", s.Strike),
				fmt.Sprintf("%.4f", s.GammaExposure),
				fmt.Sprintf("%.4f", s.VannaExposure),
				fmt.Sprintf("%.4f", s.CharmExposure),
				fmt.Sprintf("%.4f", s.NetExposure),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// WritePressureZonesCSV writes one row per stability/acceleration zone
// across every expiration to outdir/<underlying>-<runID>-zones.csv.
func WritePressureZonesCSV(res *RunResult, outdir string) error {
	name := fmt.Sprintf("%s-%s-zones.csv", res.Underlying, res.RunID)
	f, err := os.Create(filepath.Join(outdir, name))
	if err != nil {
		return fmt.Errorf("report: create zones csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"expiration", "kind", "center", "low", "high", "strength", "side", "trade_type", "hedge_type"}
	if err := w.Write(headers); err != nil {
		return err
	}
	writeZones := func(expiration, kind string, zones []pressurecloud.Zone) error {
		for _, z := range zones {
			row := []string{
				expiration, kind,
				fmt.Sprintf("%.2f", z.Center),
				fmt.Sprintf("%.2f", z.Low),
				fmt.Sprintf("%.2f", z.High),
				fmt.Sprintf("%.4f", z.Strength),
				z.Side, z.TradeType, z.HedgeType,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	}
	for _, exp := range res.Expirations {
		if err := writeZones(exp.Expiration, "stability", exp.PressureCloud.StabilityZones); err != nil {
			return err
		}
		if err := writeZones(exp.Expiration, "acceleration", exp.PressureCloud.AccelerationZones); err != nil {
			return err
		}
	}
	return nil
}
