// Package combatlog persists combat events off the simulation's critical
// path. Events are queued by LogEvent and written by a single background
// worker to every configured storage backend.
package combatlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/combatsim/internal/queue"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SessionIDLayout formats the default session id from the start time.
const SessionIDLayout = "2006-01-02_15-04-05"

// Config holds logger tuning. Zero values are replaced by defaults.
type Config struct {
	SessionID     string
	PollInterval  time.Duration
	DrainTimeout  time.Duration
	JoinTimeout   time.Duration
	HighWaterMark int
	Clock         func() time.Time
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = time.Second
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = 10000
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// StatisticsProvider returns a battle statistics snapshot for the summary.
// It is called once, from the goroutine running Shutdown.
type StatisticsProvider func() *core.Statistics

// Logger is an asynchronous, durable combat event sink.
type Logger struct {
	cfg      Config
	log      *slog.Logger
	session  core.Session
	backends []storage.Backend
	queue    *queue.Queue[core.CombatEvent]

	// counters; mu is never held while calling a backend
	mu        sync.Mutex
	counts    core.LogCounts
	highWater bool
	stats     StatisticsProvider

	stopping atomic.Bool
	abandon  atomic.Bool
	done     chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error

	// OTEL metrics
	logged    metric.Int64Counter
	written   metric.Int64Counter
	failed    metric.Int64Counter
	queueSize metric.Int64ObservableGauge
	reg       metric.Registration
}

// New initializes every backend and starts the writer goroutine. The first
// backend is the primary durable log: if it fails to initialize New returns
// an error. Other backends that fail are logged and skipped.
func New(ctx context.Context, cfg Config, log *slog.Logger, backends ...storage.Backend) (*Logger, error) {
	cfg.setDefaults()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(backends) == 0 {
		return nil, errors.New("combatlog: at least one backend is required")
	}

	start := cfg.Clock()
	if cfg.SessionID == "" {
		cfg.SessionID = start.Format(SessionIDLayout)
	}

	l := &Logger{
		cfg:     cfg,
		log:     log.With("session", cfg.SessionID),
		session: core.Session{ID: cfg.SessionID, StartedAt: start},
		queue:   queue.New[core.CombatEvent](),
		done:    make(chan struct{}),
	}

	if err := l.initMetrics(); err != nil {
		return nil, err
	}

	for i, b := range backends {
		if err := ctx.Err(); err != nil {
			l.closeBackends()
			l.unregister()
			return nil, err
		}
		if err := b.Init(l.session); err != nil {
			if i == 0 {
				l.closeBackends()
				l.unregister()
				return nil, fmt.Errorf("failed to init %s backend: %w", b.Name(), err)
			}
			l.log.Warn("Storage backend disabled", "backend", b.Name(), "error", err)
			_ = b.Close()
			continue
		}
		l.backends = append(l.backends, b)
	}

	l.log.Info("Combat logger started", "backends", l.backendNames())
	go l.run()
	return l, nil
}

func (l *Logger) initMetrics() error {
	m := meter()

	var err error
	l.logged, err = m.Int64Counter(
		"combatlog.events.logged",
		metric.WithDescription("Total events accepted by the combat logger"),
	)
	if err != nil {
		return fmt.Errorf("creating logged counter: %w", err)
	}

	l.written, err = m.Int64Counter(
		"combatlog.events.written",
		metric.WithDescription("Total events written per backend"),
	)
	if err != nil {
		return fmt.Errorf("creating written counter: %w", err)
	}

	l.failed, err = m.Int64Counter(
		"combatlog.events.failed",
		metric.WithDescription("Total failed event writes or flushes per backend"),
	)
	if err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}

	l.queueSize, err = m.Int64ObservableGauge(
		"combatlog.queue.size",
		metric.WithDescription("Current number of events waiting to be written"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}

	l.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(l.queueSize, int64(l.queue.Len()))
			return nil
		},
		l.queueSize,
	)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

func (l *Logger) unregister() {
	if l.reg != nil {
		_ = l.reg.Unregister()
	}
}

// LogEvent queues an event. It never blocks on I/O. Events logged after
// Shutdown has begun are counted as rejected and dropped.
func (l *Logger) LogEvent(e core.CombatEvent) {
	if l.stopping.Load() {
		l.reject()
		return
	}

	// Counted before the push so a summary never reports fewer events than
	// were written.
	l.mu.Lock()
	l.countEvent(e.Type, 1)
	l.mu.Unlock()

	if !l.queue.Push(e) {
		l.mu.Lock()
		l.countEvent(e.Type, -1)
		l.counts.Rejected++
		l.mu.Unlock()
		return
	}

	pending := l.queue.Len()

	l.mu.Lock()
	warn := false
	if pending > l.cfg.HighWaterMark {
		warn = !l.highWater
		l.highWater = true
	} else {
		l.highWater = false
	}
	l.mu.Unlock()

	l.logged.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(e.Type))))
	if warn {
		l.log.Warn("Combat log queue above high-water mark", "pending", pending, "mark", l.cfg.HighWaterMark)
	}
}

func (l *Logger) reject() {
	l.mu.Lock()
	l.counts.Rejected++
	l.mu.Unlock()
}

// countEvent adjusts the per-type counters. Callers hold mu.
func (l *Logger) countEvent(t core.EventType, delta int) {
	l.counts.Total += delta
	switch t {
	case core.EventShot:
		l.counts.Shots += delta
	case core.EventHit:
		l.counts.Hits += delta
	case core.EventDestroyed:
		l.counts.Destroyed += delta
	}
}

// run is the single writer. The closed flag is read before draining so that
// a closed queue found empty afterwards is fully written.
func (l *Logger) run() {
	defer close(l.done)

	for {
		closed := l.queue.Closed()
		for {
			if l.abandon.Load() {
				return
			}
			e, ok := l.queue.Pop()
			if !ok {
				break
			}
			l.write(&e)
		}
		if closed {
			return
		}

		select {
		case <-l.queue.Notify():
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

// write hands one event to every backend. Failures are counted and logged,
// never fatal.
func (l *Logger) write(e *core.CombatEvent) {
	ctx := context.Background()
	var writeErrs, flushErrs int
	primaryOK := false

	for i, b := range l.backends {
		attrs := metric.WithAttributes(attribute.String("backend", b.Name()))
		if err := b.RecordEvent(e); err != nil {
			writeErrs++
			l.failed.Add(ctx, 1, attrs)
			l.log.Error("Failed to write combat event", "backend", b.Name(), "step", e.Step, "error", err)
			continue
		}
		if err := b.Flush(); err != nil {
			flushErrs++
			l.failed.Add(ctx, 1, attrs)
			l.log.Error("Failed to flush combat log", "backend", b.Name(), "step", e.Step, "error", err)
			continue
		}
		l.written.Add(ctx, 1, attrs)
		if i == 0 {
			primaryOK = true
		}
	}

	l.mu.Lock()
	l.counts.WriteErrors += writeErrs
	l.counts.FlushErrors += flushErrs
	if primaryOK {
		l.counts.Written++
	}
	l.mu.Unlock()
}

// Shutdown stops accepting events, drains the queue within DrainTimeout,
// waits for the writer, then writes the summary and closes every backend.
// It is idempotent and safe to call from a signal handler. Timeouts are
// logged, not returned; the error reports summary or close failures.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.shutdownErr = l.shutdown(ctx)
	})
	return l.shutdownErr
}

func (l *Logger) shutdown(ctx context.Context) error {
	l.stopping.Store(true)
	l.queue.Close()

	drain := time.NewTimer(l.cfg.DrainTimeout)
	defer drain.Stop()

	select {
	case <-l.done:
	case <-drain.C:
		l.log.Warn("Combat log drain timed out", "pending", l.queue.Len(), "timeout", l.cfg.DrainTimeout)
		l.abandonAndJoin()
	case <-ctx.Done():
		l.log.Warn("Combat log drain cancelled", "pending", l.queue.Len(), "error", ctx.Err())
		l.abandonAndJoin()
	}

	abandoned := len(l.queue.GetAndEmpty())

	l.mu.Lock()
	l.counts.Abandoned += abandoned
	provider := l.stats
	l.mu.Unlock()

	summary := core.SessionSummary{
		SessionID: l.session.ID,
		StartedAt: l.session.StartedAt,
		EndedAt:   l.cfg.Clock(),
		Counts:    l.Stats(),
	}
	if provider != nil {
		summary.Battle = provider()
	}

	var errs []error
	for _, b := range l.backends {
		if err := b.WriteSummary(&summary); err != nil {
			l.log.Error("Failed to write session summary", "backend", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s summary: %w", b.Name(), err))
		}
	}
	errs = append(errs, l.closeBackends()...)
	l.unregister()

	l.log.Info("Combat logger stopped",
		"events", summary.Counts.Total,
		"written", summary.Counts.Written,
		"abandoned", summary.Counts.Abandoned,
	)
	return errors.Join(errs...)
}

func (l *Logger) abandonAndJoin() {
	l.abandon.Store(true)
	join := time.NewTimer(l.cfg.JoinTimeout)
	defer join.Stop()
	select {
	case <-l.done:
	case <-join.C:
		l.log.Warn("Combat log writer did not stop", "timeout", l.cfg.JoinTimeout)
	}
}

func (l *Logger) closeBackends() []error {
	var errs []error
	for _, b := range l.backends {
		if err := b.Close(); err != nil {
			l.log.Error("Failed to close storage backend", "backend", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s close: %w", b.Name(), err))
		}
	}
	return errs
}

// SetStatisticsProvider sets the function whose result is embedded in the
// session summary.
func (l *Logger) SetStatisticsProvider(p StatisticsProvider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = p
}

// Stats returns a copy of the aggregate counters.
func (l *Logger) Stats() core.LogCounts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts
}

// QueueLen returns the number of events waiting to be written.
func (l *Logger) QueueLen() int {
	return l.queue.Len()
}

// SessionID returns the session identifier.
func (l *Logger) SessionID() string {
	return l.session.ID
}

// Session returns the session identity.
func (l *Logger) Session() core.Session {
	return l.session
}

// ExportedFiles returns the output paths of backends that produce files.
func (l *Logger) ExportedFiles() map[string]string {
	out := make(map[string]string)
	for _, b := range l.backends {
		if ex, ok := b.(storage.Exporter); ok {
			if p := ex.ExportedFilePath(); p != "" {
				out[b.Name()] = p
			}
		}
	}
	return out
}

func (l *Logger) backendNames() []string {
	names := make([]string, len(l.backends))
	for i, b := range l.backends {
		names[i] = b.Name()
	}
	return names
}
