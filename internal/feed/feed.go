// Package feed is the boundary collaborator that turns a live options
// quote/OI source into the immutable chain.OptionChain snapshots the core
// operates on: a small interface, a live HTTP-backed implementation with
// a configured fallback, and a synthetic implementation usable without
// network access. The core never observes a snapshot mid-mutation.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	massive "github.com/massive-com/client-go/v2"

	"github.com/contactkeval/optionscan/internal/chain"
	"github.com/contactkeval/optionscan/internal/logger"
)

// Provider supplies an immutable option chain snapshot for an underlying.
type Provider interface {
	Snapshot(ctx context.Context, underlying string) (chain.OptionChain, error)
	Secondary() Provider
}

// MassiveFeed is a Provider backed by the massive-com/client-go/v2 SDK for
// live contract/quote data and go-resty for a secondary open-interest
// lookup. It holds an API key, a configured HTTP client, and an optional
// fallback.
type MassiveFeed struct {
	client    *massive.Client
	oiClient  *resty.Client
	secondary Provider
}

// NewMassiveFeed constructs a MassiveFeed. secondary may be nil.
func NewMassiveFeed(apiKey string, secondary Provider) *MassiveFeed {
	logger.Infof("initializing massive feed")
	return &MassiveFeed{
		client:    massive.NewClient(apiKey),
		oiClient:  resty.New().SetTimeout(30 * time.Second).SetHeader("Authorization", "Bearer "+apiKey),
		secondary: secondary,
	}
}

func (f *MassiveFeed) Secondary() Provider { return f.secondary }

type massiveOptionSnapshot struct {
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
	StrikePrice       float64 `json:"strike_price"`
	ExpirationDate    string  `json:"expiration_date"`
	ContractType      string  `json:"contract_type"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Last              float64 `json:"last_trade_price"`
	Volume            float64 `json:"day_volume"`
	OpenInterest      float64 `json:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

type massiveChainSnapshot struct {
	Underlying    string                  `json:"underlying_ticker"`
	Spot          float64                 `json:"underlying_price"`
	RiskFreeRate  float64                 `json:"risk_free_rate"`
	DividendYield float64                 `json:"dividend_yield"`
	Options       []massiveOptionSnapshot `json:"options"`
}

// Snapshot fetches the current option chain for underlying and normalizes
// it into chain.OptionChain. On a transport or decode error, falls back
// to the secondary provider if one is configured.
func (f *MassiveFeed) Snapshot(ctx context.Context, underlying string) (chain.OptionChain, error) {
	raw, err := f.client.GetOptionsChainSnapshot(ctx, underlying)
	if err != nil {
		logger.Errorf("massive feed snapshot failed for %s: %v", underlying, err)
		if f.secondary != nil {
			return f.secondary.Snapshot(ctx, underlying)
		}
		return chain.OptionChain{}, err
	}

	var snap massiveChainSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Errorf("massive feed snapshot decode failed for %s: %v", underlying, err)
		if f.secondary != nil {
			return f.secondary.Snapshot(ctx, underlying)
		}
		return chain.OptionChain{}, fmt.Errorf("feed: decode snapshot: %w", err)
	}

	liveOI, err := f.fetchLiveOpenInterest(ctx, underlying)
	if err != nil {
		logger.Debugf("live open interest fetch failed for %s, proceeding without it: %v", underlying, err)
	}

	oc := chain.OptionChain{
		Underlying:    snap.Underlying,
		Spot:          snap.Spot,
		RiskFreeRate:  snap.RiskFreeRate,
		DividendYield: snap.DividendYield,
	}

	now := time.Now().UnixMilli()
	for _, o := range snap.Options {
		expMS := now
		if t, err := time.Parse("2006-01-02", o.ExpirationDate); err == nil {
			expMS = t.UnixMilli()
		}

		optType := chain.Call
		if o.ContractType == "put" {
			optType = chain.Put
		}

		opt := chain.NormalizedOption{
			OCCSymbol:           o.Ticker,
			Underlying:          o.UnderlyingTicker,
			Strike:              o.StrikePrice,
			Expiration:          o.ExpirationDate,
			ExpirationTimestamp: expMS,
			OptionType:          optType,
			Bid:                 o.Bid,
			Ask:                 o.Ask,
			Mark:                (o.Bid + o.Ask) / 2,
			Last:                o.Last,
			Volume:              int64(o.Volume),
			OpenInterest:        o.OpenInterest,
			ImpliedVolatility:   o.ImpliedVolatility,
			Timestamp:           now,
		}
		if live, ok := liveOI[o.Ticker]; ok {
			v := live
			opt.LiveOpenInterest = &v
		}
		oc.Options = append(oc.Options, opt)
	}

	return oc, nil
}

// fetchLiveOpenInterest uses resty against a secondary REST endpoint to
// pull an intraday open-interest estimate keyed by OCC symbol, the input
// to the flow-delta exposure variant.
func (f *MassiveFeed) fetchLiveOpenInterest(ctx context.Context, underlying string) (map[string]float64, error) {
	var body struct {
		Results []struct {
			Ticker string  `json:"ticker"`
			LiveOI float64 `json:"live_open_interest"`
		} `json:"results"`
	}

	resp, err := f.oiClient.R().
		SetContext(ctx).
		SetQueryParam("underlying_ticker", underlying).
		SetResult(&body).
		Get("https://api.massive.com/v3/snapshot/options/live-oi")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("feed: live OI status %d", resp.StatusCode())
	}

	out := make(map[string]float64, len(body.Results))
	for _, r := range body.Results {
		out[r.Ticker] = r.LiveOI
	}
	return out, nil
}

// SyntheticFeed generates a plausible option chain without any network
// access, for local development, tests, and as a fallback when the live
// feed is unavailable.
type SyntheticFeed struct {
	secondary Provider
	rng       *rand.Rand
}

// NewSyntheticFeed constructs a SyntheticFeed with a deterministic seed.
func NewSyntheticFeed(seed int64) *SyntheticFeed {
	return &SyntheticFeed{rng: rand.New(rand.NewSource(seed))}
}

func (f *SyntheticFeed) Secondary() Provider { return f.secondary }

func (f *SyntheticFeed) Snapshot(ctx context.Context, underlying string) (chain.OptionChain, error) {
	spot := 100 + f.rng.Float64()*400
	oc := chain.OptionChain{Underlying: underlying, Spot: spot, RiskFreeRate: 0.045, DividendYield: 0.01}

	expiration := time.Now().AddDate(0, 0, 30)
	expMS := expiration.UnixMilli()
	expISO := expiration.Format("2006-01-02")

	increment := strikeIncrement(spot)
	center := roundToIncrement(spot, increment)

	for i := -10; i <= 10; i++ {
		strike := center + float64(i)*increment
		if strike <= 0 {
			continue
		}
		for _, ot := range []chain.OptionType{chain.Call, chain.Put} {
			mark := syntheticMark(spot, strike, ot, f.rng)
			oi := float64(500 + f.rng.Intn(20000))
			oc.Options = append(oc.Options, chain.NormalizedOption{
				Underlying:          underlying,
				Strike:              strike,
				Expiration:          expISO,
				ExpirationTimestamp: expMS,
				OptionType:          ot,
				Bid:                 mark - 0.05,
				Ask:                 mark + 0.05,
				Mark:                mark,
				OpenInterest:        oi,
				Timestamp:           time.Now().UnixMilli(),
			})
		}
	}

	sort.Slice(oc.Options, func(i, j int) bool { return oc.Options[i].Strike < oc.Options[j].Strike })
	return oc, nil
}

func strikeIncrement(spot float64) float64 {
	switch {
	case spot < 25:
		return 0.5
	case spot < 200:
		return 1
	default:
		return 5
	}
}

func roundToIncrement(v, increment float64) float64 {
	return chain.Round(v/increment, 0) * increment
}

// StreamingFeed maintains a mutable working set of quote updates off a
// gorilla/websocket connection and only ever hands the rest of the
// pipeline a copied, immutable chain.OptionChain. The working set itself
// is never shared; Snapshot copies it under lock before returning.
type StreamingFeed struct {
	underlying string
	conn       *websocket.Conn

	mu      sync.Mutex
	spot    float64
	working map[string]chain.NormalizedOption
}

type streamMessage struct {
	Type         string  `json:"ev"`
	Symbol       string  `json:"sym"`
	Underlying   string  `json:"underlying_ticker"`
	Strike       float64 `json:"strike_price"`
	OptionType   string  `json:"contract_type"`
	Expiration   string  `json:"expiration_date"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last_price"`
	OpenInterest float64 `json:"open_interest"`
	SpotPrice    float64 `json:"underlying_price"`
}

// DialStreamingFeed opens a websocket connection to the live quote feed
// for underlying and authenticates with apiKey.
func DialStreamingFeed(ctx context.Context, url, apiKey, underlying string) (*StreamingFeed, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("feed: streaming dial: %w", err)
	}

	sub, _ := json.Marshal(map[string]string{"action": "subscribe", "params": "O." + underlying})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("feed: streaming subscribe: %w", err)
	}

	return &StreamingFeed{
		underlying: underlying,
		conn:       conn,
		working:    make(map[string]chain.NormalizedOption),
	}, nil
}

// Run reads messages off the connection until ctx is canceled, applying
// each one to the working set under lock. Intended to run in its own
// goroutine alongside periodic calls to Snapshot.
func (f *StreamingFeed) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: streaming read: %w", err)
		}

		var msgs []streamMessage
		if err := json.Unmarshal(raw, &msgs); err != nil {
			logger.Debugf("streaming feed: dropping malformed message: %v", err)
			continue
		}

		f.mu.Lock()
		for _, m := range msgs {
			if m.SpotPrice > 0 {
				f.spot = m.SpotPrice
			}
			optType := chain.Call
			if m.OptionType == "put" {
				optType = chain.Put
			}
			f.working[m.Symbol] = chain.NormalizedOption{
				OCCSymbol:         m.Symbol,
				Underlying:        m.Underlying,
				Strike:            m.Strike,
				Expiration:        m.Expiration,
				OptionType:        optType,
				Bid:               m.Bid,
				Ask:               m.Ask,
				Mark:              (m.Bid + m.Ask) / 2,
				Last:              m.Last,
				OpenInterest:      m.OpenInterest,
				Timestamp:         time.Now().UnixMilli(),
			}
		}
		f.mu.Unlock()
	}
}

// Snapshot copies the current working set into a fresh, immutable
// chain.OptionChain. Safe to call concurrently with Run.
func (f *StreamingFeed) Snapshot(ctx context.Context, underlying string) (chain.OptionChain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	oc := chain.OptionChain{Underlying: f.underlying, Spot: f.spot}
	oc.Options = make([]chain.NormalizedOption, 0, len(f.working))
	for _, o := range f.working {
		oc.Options = append(oc.Options, o)
	}
	sort.Slice(oc.Options, func(i, j int) bool { return oc.Options[i].Strike < oc.Options[j].Strike })
	return oc, nil
}

func (f *StreamingFeed) Secondary() Provider { return nil }

// Close releases the underlying websocket connection.
func (f *StreamingFeed) Close() error { return f.conn.Close() }

func syntheticMark(spot, strike float64, ot chain.OptionType, rng *rand.Rand) float64 {
	intrinsic := 0.0
	if ot == chain.Call {
		intrinsic = spot - strike
	} else {
		intrinsic = strike - spot
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	extrinsic := spot * 0.02 * (1 + rng.Float64())
	return chain.Round(intrinsic+extrinsic, 2)
}
