package alert

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/regime"
	"github.com/contactkeval/optionscan/internal/volresponse"
)

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func TestObserveRegimeAlertsOnlyOnEnteringCrisis(t *testing.T) {
	n := &fakeNotifier{}
	w := NewWatcher(n)

	if err := w.ObserveRegime("SPY", regime.Params{Regime: regime.Normal}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 0 {
		t.Fatalf("expected no alert for normal regime")
	}

	if err := w.ObserveRegime("SPY", regime.Params{Regime: regime.Crisis}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 1 {
		t.Fatalf("expected one alert on entering crisis, got %d", len(n.messages))
	}

	if err := w.ObserveRegime("SPY", regime.Params{Regime: regime.Crisis}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 1 {
		t.Fatalf("expected no repeat alert while still in crisis, got %d", len(n.messages))
	}
}

func TestObserveVolResponseAlertsOnSignalFlip(t *testing.T) {
	n := &fakeNotifier{}
	w := NewWatcher(n)

	if err := w.ObserveVolResponse("QQQ", volresponse.Result{Signal: "neutral"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 0 {
		t.Fatalf("expected no alert for neutral signal")
	}

	if err := w.ObserveVolResponse("QQQ", volresponse.Result{Signal: "vol_bid", ZScore: 2.1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 1 {
		t.Fatalf("expected one alert on vol_bid flip, got %d", len(n.messages))
	}

	if err := w.ObserveVolResponse("QQQ", volresponse.Result{Signal: "vol_offered", ZScore: -2.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 2 {
		t.Fatalf("expected a second alert on flip to vol_offered, got %d", len(n.messages))
	}
}
