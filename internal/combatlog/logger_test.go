package combatlog

import (
	"bufio"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/combatsim/internal/rules"
	"github.com/OCAP2/combatsim/internal/sim"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/internal/storage/jsonl"
	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ sim.EventSink  = (*Logger)(nil)
	_ sim.Shutdowner = (*Logger)(nil)
)

// fakeBackend records calls and can be told to fail or stall.
type fakeBackend struct {
	name      string
	initErr   error
	recordErr error
	flushErr  error
	block     chan struct{} // RecordEvent waits on it when set

	mu        sync.Mutex
	session   core.Session
	events    []core.CombatEvent
	flushes   int
	summaries []core.SessionSummary
	closed    int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Init(s core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
	return f.initErr
}

func (f *fakeBackend) RecordEvent(e *core.CombatEvent) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeBackend) WriteSummary(s *core.SessionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, *s)
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBackend) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var _ storage.Backend = (*fakeBackend)(nil)

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func testConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, Clock: fixedClock()}
}

func evt(step int, typ core.EventType) core.CombatEvent {
	return core.CombatEvent{Step: step, Type: typ}
}

func TestNew_DefaultSessionID(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)
	defer l.Shutdown(context.Background())

	assert.Equal(t, "2024-03-01_12-00-00", l.SessionID())
	assert.Equal(t, "2024-03-01_12-00-00", fb.session.ID)
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(context.Background(), testConfig(), nil)
	assert.Error(t, err)
}

func TestNew_PrimaryInitFailure(t *testing.T) {
	fb := &fakeBackend{name: "primary", initErr: errors.New("disk full")}
	_, err := New(context.Background(), testConfig(), nil, fb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNew_MirrorInitFailureSkipsMirror(t *testing.T) {
	primary := &fakeBackend{name: "primary"}
	mirror := &fakeBackend{name: "mirror", initErr: errors.New("unreachable")}
	l, err := New(context.Background(), testConfig(), nil, primary, mirror)
	require.NoError(t, err)

	l.LogEvent(evt(1, core.EventShot))
	require.NoError(t, l.Shutdown(context.Background()))

	assert.Equal(t, 1, primary.eventCount())
	assert.Equal(t, 0, mirror.eventCount())
	assert.Equal(t, 1, mirror.closed, "a failed mirror is released once and not again at shutdown")
}

func TestLogEvent_CountsAndWrites(t *testing.T) {
	primary := &fakeBackend{name: "primary"}
	mirror := &fakeBackend{name: "mirror"}
	l, err := New(context.Background(), testConfig(), nil, primary, mirror)
	require.NoError(t, err)

	l.LogEvent(evt(1, core.EventShot))
	l.LogEvent(evt(1, core.EventHit))
	l.LogEvent(evt(1, core.EventShot))
	l.LogEvent(evt(1, core.EventDestroyed))

	assert.Eventually(t, func() bool { return primary.eventCount() == 4 }, time.Second, time.Millisecond)

	stats := l.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Shots)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Destroyed)

	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, 4, mirror.eventCount())
	assert.Equal(t, 4, primary.flushes)
	assert.Equal(t, 4, l.Stats().Written)
	assert.Equal(t, 0, l.QueueLen())
}

func TestShutdown_DrainsAndWritesSummary(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)
	l.SetStatisticsProvider(func() *core.Statistics {
		return &core.Statistics{Step: 7, Winner: core.SideB}
	})

	for i := range 200 {
		l.LogEvent(evt(i, core.EventShot))
	}
	require.NoError(t, l.Shutdown(context.Background()))

	assert.Equal(t, 200, fb.eventCount())
	require.Len(t, fb.summaries, 1)
	s := fb.summaries[0]
	assert.Equal(t, l.SessionID(), s.SessionID)
	assert.Equal(t, 200, s.Counts.Total)
	assert.Equal(t, 200, s.Counts.Written)
	assert.Equal(t, 0, s.Counts.Abandoned)
	require.NotNil(t, s.Battle)
	assert.Equal(t, core.SideB, s.Battle.Winner)
	assert.Equal(t, 1, fb.closed)
}

func TestShutdown_Idempotent(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)

	require.NoError(t, l.Shutdown(context.Background()))
	require.NoError(t, l.Shutdown(context.Background()))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, fb.summaries, 1)
	assert.Equal(t, 1, fb.closed)
}

func TestLogEvent_RejectedAfterShutdown(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)

	l.LogEvent(evt(1, core.EventShot))
	require.NoError(t, l.Shutdown(context.Background()))
	l.LogEvent(evt(2, core.EventShot))

	stats := l.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, fb.eventCount())
}

func TestLogEvent_ClosedQueueIsNotCounted(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)

	l.LogEvent(evt(1, core.EventHit))
	l.queue.Close()
	l.LogEvent(evt(2, core.EventShot))
	require.NoError(t, l.Shutdown(context.Background()))

	stats := l.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Hits)
	assert.Zero(t, stats.Shots)
	assert.Equal(t, 1, stats.Rejected)
}

func TestShutdown_ConcurrentProducerCountsConsistent(t *testing.T) {
	const n = 2000
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			l.LogEvent(evt(i, core.EventShot))
		}
	}()
	require.NoError(t, l.Shutdown(context.Background()))
	wg.Wait()

	stats := l.Stats()
	assert.Equal(t, n, stats.Total+stats.Rejected)
	assert.Equal(t, stats.Total, stats.Shots)
	assert.Equal(t, stats.Total, stats.Written+stats.Abandoned)
	assert.Equal(t, stats.Written, fb.eventCount())

	require.Len(t, fb.summaries, 1)
	assert.GreaterOrEqual(t, fb.summaries[0].Counts.Total, fb.summaries[0].Counts.Written)
}

func TestWriteFailuresAreCounted(t *testing.T) {
	primary := &fakeBackend{name: "primary", flushErr: errors.New("fsync failed")}
	mirror := &fakeBackend{name: "mirror", recordErr: errors.New("db gone")}
	l, err := New(context.Background(), testConfig(), nil, primary, mirror)
	require.NoError(t, err)

	l.LogEvent(evt(1, core.EventShot))
	l.LogEvent(evt(1, core.EventHit))
	require.NoError(t, l.Shutdown(context.Background()))

	stats := l.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Written)
	assert.Equal(t, 2, stats.FlushErrors)
	assert.Equal(t, 2, stats.WriteErrors)
	require.Len(t, primary.summaries, 1)
	assert.Equal(t, 2, primary.summaries[0].Counts.FlushErrors)
}

func TestShutdown_DrainTimeoutAbandons(t *testing.T) {
	block := make(chan struct{})
	fb := &fakeBackend{name: "slow", block: block}
	cfg := testConfig()
	cfg.DrainTimeout = 20 * time.Millisecond
	cfg.JoinTimeout = time.Second
	l, err := New(context.Background(), cfg, nil, fb)
	require.NoError(t, err)

	for i := range 5 {
		l.LogEvent(evt(i, core.EventShot))
	}

	// release the stuck write once the writer has been asked to stop
	go func() {
		time.Sleep(60 * time.Millisecond)
		close(block)
	}()

	require.NoError(t, l.Shutdown(context.Background()))

	stats := l.Stats()
	assert.Equal(t, 5, stats.Total)
	assert.GreaterOrEqual(t, stats.Abandoned, 3)
	assert.LessOrEqual(t, stats.Written+stats.Abandoned, 5)
	require.Len(t, fb.summaries, 1)
}

func TestHighWaterMarkWarnsOnce(t *testing.T) {
	block := make(chan struct{})
	fb := &fakeBackend{name: "slow", block: block}
	cfg := testConfig()
	cfg.HighWaterMark = 2
	l, err := New(context.Background(), cfg, nil, fb)
	require.NoError(t, err)

	for i := range 6 {
		l.LogEvent(evt(i, core.EventShot))
	}
	l.mu.Lock()
	assert.True(t, l.highWater)
	l.mu.Unlock()

	close(block)
	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, 6, fb.eventCount())
}

func TestJSONLDurability(t *testing.T) {
	dir := t.TempDir()
	primary := jsonl.New(jsonl.Config{Dir: dir, Fsync: true})
	l, err := New(context.Background(), testConfig(), nil, primary)
	require.NoError(t, err)

	const n = 500
	for i := range n {
		typ := core.EventShot
		if i%3 == 0 {
			typ = core.EventHit
		}
		l.LogEvent(evt(i, typ))
	}
	require.NoError(t, l.Shutdown(context.Background()))

	f, err := os.Open(primary.ExportedFilePath())
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, n, lines)
	assert.Equal(t, n, l.Stats().Written)
	assert.Equal(t, map[string]string{"jsonl": primary.ExportedFilePath()}, l.ExportedFiles())
}

func TestSimulationDelegatesShutdown(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	l, err := New(context.Background(), testConfig(), nil, fb)
	require.NoError(t, err)

	s := sim.New(sim.Options{Seed: 3, Sink: l})
	require.NoError(t, s.Initialize([]core.UnitRecord{
		{ID: 1, Side: "A", Type: "tank", Lon: 36.5, Lat: 47.5, HP: 100, Range: 5, AttackPower: 80, Accuracy: 1},
		{ID: 2, Side: "B", Type: "infantry", Lon: 36.51, Lat: 47.5, HP: 10, Range: 1, AttackPower: 1, Accuracy: 0.1},
	}, rules.Default()))
	for i := 0; i < 1000 && s.IsRunning(); i++ {
		require.NoError(t, s.Step())
	}

	require.NoError(t, s.ShutdownLogging(context.Background()))
	stats := l.Stats()
	assert.Positive(t, stats.Total)
	assert.Equal(t, stats.Total, fb.eventCount())
	assert.Equal(t, stats.Total, stats.Written)
}
