// Package conversation connects inbound messages to the dialogue engine:
// Bot runs one vertical's flow for one message, Router orders messages per
// identity and spreads identities over worker goroutines.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// EffectSubmitter schedules the side effects of a completed step.
// effects.Pipeline satisfies it.
type EffectSubmitter interface {
	Submit(rec models.LeadRecord, eff models.EffectSet, source string)
	SubmitAudit(audit models.QueryAudit)
}

// Bot handles messages for one vertical.
type Bot struct {
	engine   *flow.Engine
	sessions store.SessionStore
	sender   messaging.Sender
	effects  EffectSubmitter
	metrics  *metrics.Metrics
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithSender sets where replies go. Defaults to messaging.LogSender.
func WithSender(s messaging.Sender) BotOption {
	return func(b *Bot) { b.sender = s }
}

// WithEffects sets the side-effect pipeline. Without one, completed records are only logged.
func WithEffects(e EffectSubmitter) BotOption {
	return func(b *Bot) { b.effects = e }
}

// WithMetrics records step and delivery counters.
func WithMetrics(m *metrics.Metrics) BotOption {
	return func(b *Bot) { b.metrics = m }
}

// NewBot creates a bot running engine over sessions.
func NewBot(engine *flow.Engine, sessions store.SessionStore, opts ...BotOption) *Bot {
	b := &Bot{engine: engine, sessions: sessions}
	for _, opt := range opts {
		opt(b)
	}
	if b.sender == nil {
		b.sender = messaging.LogSender{}
	}
	return b
}

// Vertical returns the name of the vertical this bot runs.
func (b *Bot) Vertical() string {
	return b.engine.Vertical().Name
}

// Handle runs one inbound message through the engine inside the identity's
// session update, delivers the replies in order, then hands any completed
// record or audit to the effects pipeline. Delivery and effect failures are
// logged and do not fail the call.
func (b *Bot) Handle(ctx context.Context, identity, text string) (flow.StepResult, error) {
	if identity == "" {
		return flow.StepResult{}, models.ErrEmptyIdentity
	}
	vertical := b.Vertical()
	start := time.Now()

	var res flow.StepResult
	err := b.sessions.Update(ctx, identity, func(sess *models.Session) error {
		r, err := b.engine.Handle(ctx, sess, text)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		b.metrics.ObserveInbound(vertical, "error")
		slog.Error("Bot.Handle: step failed", "vertical", vertical, "identity", identity, "error", err)
		return flow.StepResult{}, fmt.Errorf("handle message for %s: %w", identity, err)
	}
	b.metrics.ObserveStep(vertical, string(res.Outcome))

	if err := messaging.SendAll(ctx, b.sender, identity, res.Messages, b.metrics.ObserveOutbound); err != nil {
		slog.Warn("Bot.Handle: some replies were not delivered", "vertical", vertical, "identity", identity, "error", err)
	}

	if res.Record != nil {
		if b.effects != nil {
			b.effects.Submit(*res.Record, res.Effects, b.engine.Vertical().Source)
		} else {
			slog.Info("Bot.Handle: lead completed without effects pipeline", "vertical", vertical, "lead_id", res.Record.ID, "kind", res.Record.Kind)
		}
	}
	if res.Audit != nil && b.effects != nil {
		b.effects.SubmitAudit(*res.Audit)
	}

	b.metrics.ObserveHandleLatency(vertical, time.Since(start).Seconds())
	b.metrics.ObserveInbound(vertical, "ok")
	slog.Debug("Bot.Handle: done", "vertical", vertical, "identity", identity, "outcome", res.Outcome, "ended", res.Ended)
	return res, nil
}
