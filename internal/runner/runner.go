package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vpntrail/vpntrail/internal/correlator"
	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/internal/metrics"
	"github.com/vpntrail/vpntrail/internal/position"
	"github.com/vpntrail/vpntrail/internal/sampler"
	"github.com/vpntrail/vpntrail/internal/sink"
	"github.com/vpntrail/vpntrail/internal/status"
	"github.com/vpntrail/vpntrail/internal/tailer"
	"github.com/vpntrail/vpntrail/internal/tracing"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// Config holds runner configuration.
type Config struct {
	LogPath       string
	StatusPath    string
	LogInterval   time.Duration
	StatsInterval time.Duration
	WriteTimeout  time.Duration

	Store      *position.Store
	Tailer     *tailer.Tailer
	Correlator *correlator.Correlator
	Sampler    *sampler.Sampler
	Sink       sink.Sink
	Metrics    *metrics.Collector
	Tracer     trace.Tracer
	Logger     *logging.Logger
}

// Runner drives the two periodic passes: the log pass that correlates
// new lines into events, and the stats pass that samples host metrics.
// Both run on the same goroutine, so the session table and the position
// store never see concurrent passes. A tailer wake-up triggers an early
// log pass between ticks.
type Runner struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	lastTick time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Runner.
func New(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("runner"),
		done:   make(chan struct{}),
	}
}

// LastTick returns the completion time of the most recent log pass.
func (r *Runner) LastTick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTick
}

// Start runs an initial log pass to drain the backlog, then schedules
// the periodic passes.
func (r *Runner) Start(ctx context.Context) {
	r.runGuarded(ctx, "log", r.RunLogPass)

	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts scheduling, waits for an in-flight pass, and saves state a
// final time.
func (r *Runner) Stop(ctx context.Context) error {
	close(r.done)
	r.wg.Wait()

	if err := r.cfg.Store.Save(); err != nil {
		r.cfg.Metrics.StateSaveErrs.Inc()
		return fmt.Errorf("final state save failed: %w", err)
	}
	r.cfg.Metrics.StateSaves.Inc()
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	logTicker := time.NewTicker(r.cfg.LogInterval)
	defer logTicker.Stop()
	statsTicker := time.NewTicker(r.cfg.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-logTicker.C:
			r.runGuarded(ctx, "log", r.RunLogPass)
		case <-r.cfg.Tailer.Wake():
			r.runGuarded(ctx, "log", r.RunLogPass)
			logTicker.Reset(r.cfg.LogInterval)
		case <-statsTicker.C:
			r.runGuarded(ctx, "stats", r.RunStatsPass)
		case <-r.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runGuarded runs one pass with timing, failure accounting, and a panic
// guard. A malformed line must never take the daemon down.
func (r *Runner) runGuarded(ctx context.Context, pass string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Metrics.TickFailures.WithLabelValues(pass).Inc()
			r.logger.Error().
				Str("pass", pass).
				Interface("panic", rec).
				Msg("Pass panicked")
		}
	}()

	ctx, span := tracing.TracePass(ctx, r.cfg.Tracer, pass)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.cfg.Metrics.TickDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())

	if err != nil {
		r.cfg.Metrics.TickFailures.WithLabelValues(pass).Inc()
		tracing.RecordError(ctx, err)
		r.logger.Error().Err(err).Str("pass", pass).Msg("Pass failed")
	}
}

// RunLogPass reads new log lines, correlates them into events, writes
// the events not yet notified, and persists the advanced position.
func (r *Runner) RunLogPass(ctx context.Context) error {
	r.refreshTraffic()

	pos, ok := r.cfg.Store.Position(r.cfg.LogPath)
	if !ok {
		pos = types.FilePosition{Path: r.cfg.LogPath}
	}

	lines, newPos, err := r.cfg.Tailer.Poll(pos)
	if err != nil {
		return err
	}

	if pos.Inode != 0 && newPos.Inode != 0 && newPos.Inode != pos.Inode {
		r.cfg.Metrics.RotationsDetected.WithLabelValues(r.cfg.LogPath).Inc()
	}
	r.cfg.Metrics.LinesRead.WithLabelValues(r.cfg.LogPath).Add(float64(len(lines)))

	for _, line := range lines {
		for _, ev := range r.cfg.Correlator.Consume(line) {
			r.emit(ctx, ev)
		}
	}

	if evicted := r.cfg.Correlator.EvictIdle(); evicted > 0 {
		r.cfg.Metrics.SessionsEvicted.Add(float64(evicted))
	}
	r.cfg.Metrics.ActiveSessions.Set(float64(r.cfg.Correlator.ActiveSessions()))

	r.cfg.Store.SetPosition(newPos)
	if err := r.cfg.Store.Save(); err != nil {
		r.cfg.Metrics.StateSaveErrs.Inc()
		return err
	}
	r.cfg.Metrics.StateSaves.Inc()

	r.mu.Lock()
	r.lastTick = time.Now()
	r.mu.Unlock()
	return nil
}

// emit writes one event unless it was already notified. The dedup set is
// updated before the write: a failed write is not retried with the same
// identifier, trading a lost event under a crash for never delivering
// duplicates.
func (r *Runner) emit(ctx context.Context, ev *types.ConnectionEvent) {
	id := ev.DedupID()
	if r.cfg.Store.IsNotified(id) {
		r.cfg.Metrics.DuplicatesSuppressed.Inc()
		return
	}
	r.cfg.Store.RecordNotified(id)
	r.cfg.Metrics.EventsEmitted.WithLabelValues(string(ev.EventType)).Inc()

	if err := r.write(ctx, ev); err != nil {
		r.logger.Error().
			Err(err).
			Str("event_type", string(ev.EventType)).
			Str("session", ev.Session().String()).
			Msg("Failed to write event")
	}
}

// RunStatsPass samples host metrics and writes one stats record.
func (r *Runner) RunStatsPass(ctx context.Context) error {
	stats := r.cfg.Sampler.Sample(ctx)
	return r.write(ctx, stats)
}

// write performs one bounded sink write with metrics and tracing.
func (r *Runner) write(ctx context.Context, rec types.Record) error {
	writeCtx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	writeCtx, span := tracing.TraceSinkWrite(writeCtx, r.cfg.Tracer, r.cfg.Sink.Name(), rec.Kind())
	defer span.End()

	start := time.Now()
	err := r.cfg.Sink.Write(writeCtx, rec)
	r.cfg.Metrics.SinkWriteDuration.WithLabelValues(r.cfg.Sink.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		r.cfg.Metrics.SinkWriteFailures.WithLabelValues(r.cfg.Sink.Name(), rec.Kind()).Inc()
		tracing.RecordError(writeCtx, err)
		return err
	}
	r.cfg.Metrics.SinkWrites.WithLabelValues(r.cfg.Sink.Name(), rec.Kind()).Inc()
	return nil
}

// refreshTraffic reloads the status snapshot if one is configured. The
// snapshot only enriches disconnects, so failure to read it degrades the
// data rather than the pass.
func (r *Runner) refreshTraffic() {
	if r.cfg.StatusPath == "" {
		return
	}
	snap, err := status.Load(r.cfg.StatusPath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", r.cfg.StatusPath).Msg("Cannot read status file")
		}
		return
	}
	r.cfg.Correlator.SetTraffic(snap)
}
