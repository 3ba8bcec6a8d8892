// Package engine wires the strike history, notification gate, outbound
// throttle and storm machine together. It owns the periodic tick loop and the
// strike consume loop and hands approved posts to the dispatcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/gate"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
	"github.com/couchcryptid/storm-lightning-service/internal/storm"
	"github.com/couchcryptid/storm-lightning-service/internal/throttle"
)

const (
	postKindStrike  = "strike"
	postKindSummary = "summary"

	// strikeEventType is the gate event type, and so the default dedupe key,
	// for per-strike notifications.
	strikeEventType = "lightning"

	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Publisher sends a post to the external notification service.
type Publisher interface {
	Publish(ctx context.Context, post domain.Post) error
}

// StrikeSource blocks until the next raw strike is available.
type StrikeSource interface {
	Extract(ctx context.Context) (domain.RawStrike, error)
}

// Config holds the engine's own settings; component thresholds live in the
// components themselves.
type Config struct {
	Node         domain.NodeInfo
	TickInterval time.Duration
	SummaryBin   time.Duration
}

// Components are the collaborators the engine drives. Corroborator and
// Telemetry are optional.
type Components struct {
	History      *domain.History
	Machine      *storm.Machine
	Gate         *gate.Gate
	Throttle     *throttle.Throttle
	Dispatcher   *Dispatcher
	Publisher    Publisher
	Corroborator domain.Corroborator
	Telemetry    domain.TelemetrySink
}

// Engine is the single owner of the lightning state. HandleStrike and Tick
// may be called concurrently; policy decisions are serialized under one
// mutex and publishing happens on dispatcher workers.
type Engine struct {
	mu sync.Mutex

	cfg          Config
	history      *domain.History
	machine      *storm.Machine
	gate         *gate.Gate
	throttle     *throttle.Throttle
	dispatcher   *Dispatcher
	publisher    Publisher
	corroborator domain.Corroborator
	telemetry    domain.TelemetrySink

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates an Engine.
func New(cfg Config, c Components, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.SummaryBin <= 0 {
		cfg.SummaryBin = domain.DefaultSummaryBin
	}

	var corroborator domain.Corroborator
	if c.Corroborator != nil {
		corroborator = &countingCorroborator{next: c.Corroborator, metrics: metrics}
	}

	return &Engine{
		cfg:          cfg,
		history:      c.History,
		machine:      c.Machine,
		gate:         c.Gate,
		throttle:     c.Throttle,
		dispatcher:   c.Dispatcher,
		publisher:    c.Publisher,
		corroborator: corroborator,
		telemetry:    c.Telemetry,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil while the tick loop is running.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine tick loop is not running")
	}
	return nil
}

// strikeOutcome captures everything decided under the lock for one strike.
type strikeOutcome struct {
	started  storm.Signal
	isStart  bool
	icon     string
	decision gate.Decision
	allowed  bool
	denial   *throttle.Denial
}

// HandleStrike records a strike, advances the storm machine and, when both
// the gate and the throttle allow it, dispatches a notification. A zero
// OccurredAt is stamped with the current time; a future one is clamped to it
// so session timing always follows the engine clock.
func (e *Engine) HandleStrike(ctx context.Context, s domain.Strike) {
	now := e.clock.Now()
	switch {
	case s.OccurredAt.IsZero():
		s.OccurredAt = now
	case s.OccurredAt.After(now):
		e.logger.Warn("strike timestamp in the future, using current time",
			"occurred_at", s.OccurredAt,
			"skew", s.OccurredAt.Sub(now),
		)
		s.OccurredAt = now
	}

	out := e.decideStrike(s, now)

	e.metrics.StrikesReceived.Inc()
	e.emit(ctx, domain.NewStrikeTelemetry(e.cfg.Node, s, now))
	if out.isStart {
		e.onSessionStarted(ctx, out.started, now)
	}

	e.metrics.GateDecisions.WithLabelValues(string(out.decision.Reason)).Inc()
	text := domain.Timestamped(now, domain.FormatStrikeMessage(out.icon, s))

	switch {
	case out.decision.Reason == gate.ReasonDryRun:
		e.logger.Info("dry run, notification not posted", "text", text)
		return
	case !out.decision.Allow:
		e.logger.Info("notification suppressed",
			"reason", out.decision.Reason,
			"retry_after", out.decision.RetryAfter,
			"distance_km", s.DistanceKM,
		)
		return
	case !out.allowed:
		e.metrics.ThrottleDenials.WithLabelValues(out.denial.Kind).Inc()
		e.logger.Warn("publish throttled", "error", out.denial)
		return
	}

	ev := gate.Event{Type: strikeEventType}
	e.dispatch(ctx, postKindStrike, text, true, func() {
		if err := e.gate.RecordPost(ev, now); err != nil {
			e.logger.Warn("persist gate state failed", "error", err)
		}
	}, func() {
		e.gate.Release(ev)
	})
}

func (e *Engine) decideStrike(s domain.Strike, now time.Time) strikeOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The icon reflects the state the strike arrived into.
	var out strikeOutcome
	out.icon = domain.StatusIcon(e.machine.Session().Active, e.machine.RecentStrikes(s.OccurredAt))
	e.history.Record(s)
	out.started, out.isStart = e.machine.OnEvent(s.OccurredAt)

	ev := gate.Event{Type: strikeEventType}
	out.decision = e.gate.ShouldPost(ev, now)
	if out.decision.Allow {
		out.allowed, out.denial = e.throttle.CanPublish(now)
	}
	if out.allowed {
		e.gate.Reserve(ev)
	}
	return out
}

// IngestRaw parses a raw strike payload and handles it. Parse failures are
// counted and returned.
func (e *Engine) IngestRaw(ctx context.Context, raw domain.RawStrike) error {
	s, err := domain.ParseStrike(raw)
	if err != nil {
		e.metrics.IngestErrors.Inc()
		return err
	}
	e.HandleStrike(ctx, s)
	return nil
}

// pendingSummary is a summary approved by the throttle, ready to publish.
type pendingSummary struct {
	summary domain.Summary
	allowed bool
	denial  *throttle.Denial
}

// Tick advances the storm machine. Session ends are logged and recorded as
// telemetry; a due summary is built from history and dispatched through the
// outbound throttle only.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clock.Now()

	signals, summaries := e.tickLocked(now)

	for _, sig := range signals {
		e.metrics.StormTransitions.WithLabelValues(sig.Kind.String()).Inc()
		if sig.Kind == storm.SignalEnded {
			e.metrics.StormActive.Set(0)
			e.logger.Info("storm ended",
				"start", sig.Start,
				"end", sig.End,
				"duration", sig.End.Sub(sig.Start),
			)
			e.emit(ctx, domain.NewSessionTelemetry(domain.TelemetryStormEnd, e.cfg.Node, sig.Start, sig.End, now))
		}
	}

	for _, p := range summaries {
		e.metrics.SummariesEmitted.Inc()
		if !p.allowed {
			e.metrics.ThrottleDenials.WithLabelValues(p.denial.Kind).Inc()
			e.logger.Warn("storm summary throttled", "error", p.denial)
			continue
		}
		sum := p.summary
		e.logger.Info("storm summary due", "total", sum.Total, "peak", sum.Peak, "bins", len(sum.Bins))
		e.dispatch(ctx, postKindSummary, domain.FormatSummary(sum, e.cfg.Node), false, func() {
			e.emit(ctx, domain.NewSummaryTelemetry(e.cfg.Node, sum, e.clock.Now()))
		}, nil)
	}
}

func (e *Engine) tickLocked(now time.Time) ([]storm.Signal, []pendingSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signals := e.machine.Tick(now)
	var summaries []pendingSummary
	for _, sig := range signals {
		if sig.Kind != storm.SignalSummaryDue {
			continue
		}
		strikes := e.history.Slice(sig.Start, sig.End)
		p := pendingSummary{summary: domain.BuildSummary(strikes, sig.Start, sig.End, e.cfg.SummaryBin)}
		p.allowed, p.denial = e.throttle.CanPublish(now)
		summaries = append(summaries, p)
	}
	return signals, summaries
}

func (e *Engine) onSessionStarted(ctx context.Context, sig storm.Signal, now time.Time) {
	e.metrics.StormTransitions.WithLabelValues(sig.Kind.String()).Inc()
	e.metrics.StormActive.Set(1)
	e.logger.Info("storm started", "start", sig.Start)
	e.emit(ctx, domain.NewSessionTelemetry(domain.TelemetryStormStart, e.cfg.Node, sig.Start, time.Time{}, now))
}

// dispatch hands a post to a worker. onSuccess runs on the worker after a
// successful publish; onFailure runs when the publish fails or the post is
// dropped. Strike notifications are annotated with weather corroboration
// before publishing.
func (e *Engine) dispatch(ctx context.Context, kind, text string, corroborate bool, onSuccess, onFailure func()) {
	task := func(ctx context.Context) error {
		start := e.clock.Now()
		body := text
		if corroborate {
			body, _ = domain.AnnotateWithCorroboration(ctx, body, e.corroborator, e.logger)
		}

		err := e.publisher.Publish(ctx, domain.Post{Kind: kind, Text: body})
		e.metrics.PublishDuration.Observe(e.clock.Since(start).Seconds())
		if err != nil {
			e.metrics.Publishes.WithLabelValues(kind, "error").Inc()
			if onFailure != nil {
				onFailure()
			}
			return fmt.Errorf("publish %s: %w", kind, err)
		}

		e.metrics.Publishes.WithLabelValues(kind, "success").Inc()
		e.logger.Info("notification published", "kind", kind)
		if onSuccess != nil {
			onSuccess()
		}
		return nil
	}

	if !e.dispatcher.Submit(ctx, kind, task) {
		e.metrics.Publishes.WithLabelValues(kind, "dropped").Inc()
		e.logger.Warn("publish workers busy, dropping notification", "kind", kind)
		if onFailure != nil {
			onFailure()
		}
	}
}

// emit sends a telemetry record to the configured sink, if any.
func (e *Engine) emit(ctx context.Context, rec domain.Telemetry) {
	if e.telemetry == nil {
		return
	}
	if err := e.telemetry.Emit(ctx, rec); err != nil {
		e.metrics.TelemetryErrors.Inc()
		e.logger.Warn("telemetry emit failed", "event", rec.Event, "error", err)
	}
}

// Run drives the periodic tick until the context is cancelled. node_start and
// node_shutdown telemetry bracket the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", "tick_interval", e.cfg.TickInterval, "node_id", e.cfg.Node.ID)
	e.metrics.EngineRunning.Set(1)
	defer e.metrics.EngineRunning.Set(0)

	now := e.clock.Now()
	e.emit(ctx, domain.NewTelemetry(domain.TelemetryNodeStart, e.cfg.Node, now, now))

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.ready.Store(true)
	defer e.ready.Store(false)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			now := e.clock.Now()
			e.emit(context.WithoutCancel(ctx), domain.NewTelemetry(domain.TelemetryNodeShutdown, e.cfg.Node, now, now))
			return nil
		case <-ticker.Chan():
			e.Tick(ctx)
		}
	}
}

// Consume reads strikes from src until the context is cancelled, backing off
// exponentially on source errors. Malformed payloads are skipped and their
// offsets committed.
func (e *Engine) Consume(ctx context.Context, src StrikeSource) error {
	e.logger.Info("strike consumer started")
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			e.logger.Info("strike consumer stopping", "reason", ctx.Err())
			return nil
		}

		raw, err := src.Extract(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("extract strike failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if err := e.IngestRaw(ctx, raw); err != nil {
			e.logger.Warn("invalid strike, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
		}
		e.commitOffset(ctx, raw)
	}
}

// commitOffset commits the message offset if a commit function is available.
func (e *Engine) commitOffset(ctx context.Context, raw domain.RawStrike) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		e.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// Drain waits for in-flight publishes to finish until ctx expires.
func (e *Engine) Drain(ctx context.Context) error {
	return e.dispatcher.Drain(ctx)
}

// countingCorroborator records lookup outcomes.
type countingCorroborator struct {
	next    domain.Corroborator
	metrics *observability.Metrics
}

func (c *countingCorroborator) Corroborate(ctx context.Context) (domain.Corroboration, error) {
	result, err := c.next.Corroborate(ctx)
	switch {
	case err != nil:
		c.metrics.Corroborations.WithLabelValues("error").Inc()
	case result.StormPositive:
		c.metrics.Corroborations.WithLabelValues("positive").Inc()
	default:
		c.metrics.Corroborations.WithLabelValues("negative").Inc()
	}
	return result, err
}
