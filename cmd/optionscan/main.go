package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/optionscan/internal/alert"
	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/charmintegral"
	"github.com/contactkeval/optionscan/internal/exposure"
	"github.com/contactkeval/optionscan/internal/feed"
	"github.com/contactkeval/optionscan/internal/hedgeimpulse"
	"github.com/contactkeval/optionscan/internal/ivsurface"
	"github.com/contactkeval/optionscan/internal/logger"
	"github.com/contactkeval/optionscan/internal/pressurecloud"
	"github.com/contactkeval/optionscan/internal/regime"
	"github.com/contactkeval/optionscan/internal/report"
	"github.com/contactkeval/optionscan/internal/volresponse"
)

// Config is the pipeline's JSON config file shape, loaded from -config.
type Config struct {
	Underlying         string  `json:"underlying" validate:"required"`
	OutputDir          string  `json:"output_dir,omitempty"`
	Verbosity          int     `json:"verbosity,omitempty" validate:"gte=0,lte=3"`
	HedgeImpulseRange  float64 `json:"hedge_impulse_range_pct,omitempty" validate:"gte=0"`
	VolResponseMinObs  int     `json:"vol_response_min_observations,omitempty" validate:"gte=0"`
	ContractMultiplier float64 `json:"contract_multiplier,omitempty" validate:"gte=0"`
	DiscordBotToken    string  `json:"-"`
	DiscordChannelID   string  `json:"-"`
}

var configValidator = validator.New()

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optionscan_stage_duration_seconds",
		Help:    "Duration of each pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	lastRegimeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optionscan_last_regime",
		Help: "Last computed regime label, one-hot per label.",
	}, []string{"label"})

	volResponseSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionscan_vol_response_signals_total",
		Help: "Count of VolResponse signals emitted, by signal.",
	}, []string{"signal"})
)

func main() {
	configPath := flag.String("config", filepath.Join("configs", "optionscan.json"), "path to JSON config")
	rest := flag.Bool("rest", false, "run as REST server (accept analysis run requests)")
	port := flag.String("port", ":8080", "REST server listen address")
	jwtSecret := flag.String("jwt-secret", os.Getenv("OPTIONSCAN_JWT_SECRET"), "HMAC secret for bearer-token auth on /run")
	flag.Parse()

	cfgData, err := os.ReadFile(*configPath)
	if err != nil {
		logger.Errorf("reading config: %v", err)
		os.Exit(1)
	}
	var cfg Config
	if err := json.Unmarshal(cfgData, &cfg); err != nil {
		logger.Errorf("invalid config: %v", err)
		os.Exit(1)
	}
	if err := configValidator.Struct(cfg); err != nil {
		logger.Errorf("config failed validation: %v", err)
		os.Exit(1)
	}
	logger.SetVerbosity(cfg.Verbosity)
	if cfg.OutputDir == "" {
		cfg.OutputDir = "out"
	}
	cfg.DiscordBotToken = os.Getenv("OPTIONSCAN_DISCORD_BOT_TOKEN")
	cfg.DiscordChannelID = os.Getenv("OPTIONSCAN_DISCORD_CHANNEL_ID")

	var provider feed.Provider
	if apiKey := os.Getenv("MASSIVE_API_KEY"); apiKey != "" {
		provider = feed.NewMassiveFeed(apiKey, feed.NewSyntheticFeed(1))
		logger.Infof("massive feed enabled")
	} else {
		provider = feed.NewSyntheticFeed(time.Now().UnixNano())
		logger.Infof("synthetic feed enabled (no MASSIVE_API_KEY set)")
	}

	watcher := buildWatcher(cfg)

	if *rest {
		serveREST(cfg, provider, watcher, *jwtSecret, *port)
		return
	}

	ctx := context.Background()
	start := time.Now()
	res, err := runPipeline(ctx, cfg, provider, watcher)
	if err != nil {
		logger.Errorf("pipeline run failed: %v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Errorf("could not create output dir %s: %v", cfg.OutputDir, err)
	}
	_ = report.WriteJSON(res, cfg.OutputDir)
	_ = report.WriteExposureCSV(res, cfg.OutputDir)
	_ = report.WritePressureZonesCSV(res, cfg.OutputDir)

	logger.Infof("finished in %v, %s expirations analyzed, spot %s, wrote results to %s",
		time.Since(start), humanize.Comma(int64(len(res.Expirations))), humanize.FormatFloat("#,###.##", res.Spot), cfg.OutputDir)
}

func buildWatcher(cfg Config) *alert.Watcher {
	if cfg.DiscordBotToken == "" || cfg.DiscordChannelID == "" {
		logger.Infof("discord alerting disabled (no bot token/channel configured)")
		return nil
	}
	notifier, err := alert.NewDiscordNotifier(cfg.DiscordBotToken, cfg.DiscordChannelID)
	if err != nil {
		logger.Errorf("discord notifier init failed, alerting disabled: %v", err)
		return nil
	}
	return alert.NewWatcher(notifier)
}

// runPipeline fetches one immutable chain snapshot, computes the IV
// surfaces and exposures for the whole chain, then fans out per-
// expiration regime/hedge-impulse/pressure-cloud/charm-integral
// computation with errgroup, safe because each goroutine operates on a
// disjoint expiration.
func runPipeline(ctx context.Context, cfg Config, provider feed.Provider, watcher *alert.Watcher) (*report.RunResult, error) {
	runID := uuid.NewString()
	logger.Infof("run %s starting for %s", runID, cfg.Underlying)

	snapTimer := prometheus.NewTimer(stageDuration.WithLabelValues("snapshot"))
	oc, err := provider.Snapshot(ctx, cfg.Underlying)
	snapTimer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}

	surfaceTimer := prometheus.NewTimer(stageDuration.WithLabelValues("ivsurface"))
	surfaces := ivsurface.GetIVSurfaces(ivsurface.BlackScholes, ivsurface.TotalVariance, oc)
	surfaceTimer.ObserveDuration()

	exposureTimer := prometheus.NewTimer(stageDuration.WithLabelValues("exposure"))
	variants := exposure.CalculateGammaVannaCharmExposures(oc, surfaces)
	exposureTimer.ObserveDuration()

	hedgeCfg := hedgeimpulse.DefaultConfig()
	if cfg.HedgeImpulseRange > 0 {
		hedgeCfg.RangePercent = cfg.HedgeImpulseRange
	}
	pressureCfg := pressurecloud.DefaultConfig()
	if cfg.ContractMultiplier > 0 {
		pressureCfg.ContractMultiplier = cfg.ContractMultiplier
	}

	results := make([]report.ExpirationResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			callSurface := findSurface(surfaces, v.Expiration, chain.Call)
			rp := regime.DeriveRegimeParams(callSurface, v.Spot)

			curveTimer := prometheus.NewTimer(stageDuration.WithLabelValues("hedgeimpulse"))
			curve := hedgeimpulse.ComputeHedgeImpulseCurve(v.Canonical, callSurface, hedgeCfg)
			curveTimer.ObserveDuration()

			cloudTimer := prometheus.NewTimer(stageDuration.WithLabelValues("pressurecloud"))
			cloud := pressurecloud.ComputePressureCloud(curve, rp, pressureCfg)
			cloudTimer.ObserveDuration()

			charmTimer := prometheus.NewTimer(stageDuration.WithLabelValues("charmintegral"))
			charm := charmintegral.ComputeCharmIntegral(v.Canonical, charmintegral.DefaultConfig())
			charmTimer.ObserveDuration()

			lastRegimeGauge.Reset()
			lastRegimeGauge.WithLabelValues(string(rp.Regime)).Set(1)

			if watcher != nil {
				if err := watcher.ObserveRegime(cfg.Underlying, rp); err != nil {
					logger.Debugf("alert: regime notify failed: %v", err)
				}
			}

			results[i] = report.ExpirationResult{
				Expiration:    v.Expiration,
				Exposures:     v,
				Regime:        rp,
				HedgeImpulse:  curve,
				PressureCloud: cloud,
				CharmIntegral: charm,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("per-expiration pipeline: %w", err)
	}

	volResponse := computeVolResponse(oc, cfg)
	volResponseSignals.WithLabelValues(volResponse.Signal).Inc()
	if watcher != nil {
		if err := watcher.ObserveVolResponse(cfg.Underlying, volResponse); err != nil {
			logger.Debugf("alert: vol-response notify failed: %v", err)
		}
	}

	return &report.RunResult{
		RunID:       runID,
		Underlying:  cfg.Underlying,
		Spot:        oc.Spot,
		GeneratedAt: time.Now().UnixMilli(),
		Expirations: results,
		VolResponse: volResponse,
	}, nil
}

// computeVolResponse is a placeholder single-observation fit: a
// production deployment accumulates Observation history across runs.
// With no history available in a single run, it always reports
// insufficient_data; wired so the REST and metrics surfaces have a
// concrete, testable Signal to report against.
func computeVolResponse(oc chain.OptionChain, cfg Config) volresponse.Result {
	volCfg := volresponse.DefaultConfig()
	if cfg.VolResponseMinObs > 0 {
		volCfg.MinObservations = cfg.VolResponseMinObs
	}
	return volresponse.ComputeVolResponseZScore(nil, volCfg)
}

func findSurface(surfaces []ivsurface.IVSurface, expiration string, optType chain.OptionType) ivsurface.IVSurface {
	for _, s := range surfaces {
		if s.Expiration == expiration && s.OptionType == optType {
			return s
		}
	}
	return ivsurface.IVSurface{}
}

func serveREST(cfg Config, provider feed.Provider, watcher *alert.Watcher, jwtSecret, port string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		if jwtSecret != "" && !authorized(r, jwtSecret) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		res, err := runPipeline(r.Context(), cfg, provider, watcher)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	logger.Infof("starting REST server on %s", port)
	logger.Errorf("server exited: %v", http.ListenAndServe(port, mux))
}

func authorized(r *http.Request, secret string) bool {
	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return false
	}
	tokenString := authHeader[len(prefix):]

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	return err == nil && token.Valid
}
