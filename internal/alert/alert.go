// Package alert watches regime and vol-response results for the
// transitions worth paging a human about and pushes them to a Discord
// channel via bwmarrin/discordgo. Structured as a small Notifier
// interface plus one concrete sender.
package alert

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/contactkeval/optionscan/internal/logger"
	"github.com/contactkeval/optionscan/internal/regime"
	"github.com/contactkeval/optionscan/internal/volresponse"
)

// Notifier delivers a formatted alert message. Tests use a fake; the
// binary uses DiscordNotifier.
type Notifier interface {
	Notify(message string) error
}

// DiscordNotifier posts alert messages to a single Discord channel.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier opens a Discord bot session authenticated with
// botToken and targets channelID for every alert.
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("alert: discord session: %w", err)
	}
	return &DiscordNotifier{session: session, channelID: channelID}, nil
}

func (n *DiscordNotifier) Notify(message string) error {
	_, err := n.session.ChannelMessageSend(n.channelID, message)
	return err
}

// Watcher tracks the previously seen regime label and vol-response signal
// per underlying and emits an alert only on the transitions worth paging:
// entering crisis regime, or a vol-response signal flipping to vol_bid or
// vol_offered.
type Watcher struct {
	notifier Notifier

	lastRegime map[string]regime.Label
	lastSignal map[string]string
}

// NewWatcher constructs a Watcher that reports through notifier.
func NewWatcher(notifier Notifier) *Watcher {
	return &Watcher{
		notifier:   notifier,
		lastRegime: make(map[string]regime.Label),
		lastSignal: make(map[string]string),
	}
}

// ObserveRegime records the current regime label for underlying and
// alerts the first time it transitions into crisis.
func (w *Watcher) ObserveRegime(underlying string, params regime.Params) error {
	prev, seen := w.lastRegime[underlying]
	w.lastRegime[underlying] = params.Regime

	if params.Regime == regime.Crisis && (!seen || prev != regime.Crisis) {
		logger.Infof("%s entered crisis regime (atmIV=%.4f skew=%.4f)", underlying, params.ATMIV, params.Skew)
		return w.notifier.Notify(fmt.Sprintf(
			"**%s** regime -> crisis (ATM IV %.1f%%, skew %.4f, implied vol-of-vol %.4f)",
			underlying, params.ATMIV*100, params.Skew, params.ImpliedVolOfVol,
		))
	}
	return nil
}

// ObserveVolResponse alerts the first time underlying's vol-response
// signal flips to vol_bid or vol_offered.
func (w *Watcher) ObserveVolResponse(underlying string, res volresponse.Result) error {
	prev, seen := w.lastSignal[underlying]
	w.lastSignal[underlying] = res.Signal

	if (res.Signal == "vol_bid" || res.Signal == "vol_offered") && (!seen || prev != res.Signal) {
		logger.Infof("%s vol-response signal -> %s (z=%.2f)", underlying, res.Signal, res.ZScore)
		return w.notifier.Notify(fmt.Sprintf(
			"**%s** vol-response signal -> %s (z-score %.2f, residual stdev %.5f)",
			underlying, res.Signal, res.ZScore, res.ResidualStdDev,
		))
	}
	return nil
}
