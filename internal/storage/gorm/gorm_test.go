package gormstorage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/combatsim/internal/database"
	"github.com/OCAP2/combatsim/internal/model"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

var memCounter atomic.Int64

// newTestManager connects a fresh in-memory SQLite database.
func newTestManager(t *testing.T) *database.Manager {
	t.Helper()
	m := database.NewManager(zerolog.Nop())
	name := fmt.Sprintf("gormtest%d", memCounter.Add(1))
	require.NoError(t, m.ConnectSqlite("", name))
	return m
}

func testSession() core.Session {
	return core.Session{ID: "2024-01-15_14-30-45", StartedAt: time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)}
}

func testEvent(step int, typ core.EventType) *core.CombatEvent {
	return &core.CombatEvent{
		Timestamp: time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC),
		Step:      step,
		Type:      typ,
		Attacker:  core.UnitSnapshot{ID: 1, Name: "A_tank_1", Type: core.UnitTypeTank, Side: core.SideA, Position: core.Position{Lon: 36.5, Lat: 47.5}},
		Target:    core.UnitSnapshot{ID: 4, Name: "B_tank_4", Type: core.UnitTypeTank, Side: core.SideB, Position: core.Position{Lon: 36.52, Lat: 47.5}, HP: 58, MaxHP: 100},
		Distance:  1.5,
		HitChance: 0.56,
		Damage:    42,
	}
}

func TestNew(t *testing.T) {
	b := New(nil, Config{}, nil)
	require.NotNil(t, b)
	assert.Equal(t, 500, b.cfg.BatchSize)
	assert.Equal(t, "gorm", b.Name())
}

func TestInit_WithoutDatabase(t *testing.T) {
	b := New(nil, Config{}, nil)
	assert.ErrorIs(t, b.Init(testSession()), storage.ErrNotInitialized)
	assert.ErrorIs(t, b.RecordEvent(testEvent(1, core.EventShot)), storage.ErrNotInitialized)
}

func TestRecordEvent_QueuesUntilFlush(t *testing.T) {
	m := newTestManager(t)
	b := New(m, Config{}, nil)
	require.NoError(t, b.Init(testSession()))
	defer b.Close()

	require.NoError(t, b.RecordEvent(testEvent(1, core.EventShot)))
	require.NoError(t, b.RecordEvent(testEvent(1, core.EventHit)))
	assert.Equal(t, 2, b.pending.Len())

	var count int64
	require.NoError(t, m.DB.Model(&model.CombatEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.pending.Len())
	require.NoError(t, m.DB.Model(&model.CombatEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var rows []model.CombatEvent
	require.NoError(t, m.DB.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "hit", rows[1].EventType)
	assert.Equal(t, 58.0, rows[1].TargetHP)

	p, err := rows[1].TargetPoint()
	require.NoError(t, err)
	xy, ok := p.XY()
	require.True(t, ok)
	assert.Equal(t, 36.52, xy.X)

	// no duplicate session rows from associations
	require.NoError(t, m.DB.Model(&model.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFlush_Empty(t *testing.T) {
	b := New(newTestManager(t), Config{}, nil)
	require.NoError(t, b.Init(testSession()))
	defer b.Close()
	assert.NoError(t, b.Flush())
}

func TestWriteSummary(t *testing.T) {
	m := newTestManager(t)
	b := New(m, Config{}, nil)
	require.NoError(t, b.Init(testSession()))
	defer b.Close()

	ended := time.Date(2024, 1, 15, 14, 40, 0, 0, time.UTC)
	require.NoError(t, b.WriteSummary(&core.SessionSummary{
		SessionID: "2024-01-15_14-30-45",
		EndedAt:   ended,
		Counts:    core.LogCounts{Total: 10, Shots: 6, Hits: 3, Destroyed: 1, Written: 10},
		Battle:    &core.Statistics{Step: 12, Winner: core.SideA},
	}))

	var summary model.SessionSummary
	require.NoError(t, m.DB.First(&summary).Error)
	assert.Equal(t, 10, summary.TotalEvents)
	assert.Equal(t, 6, summary.Shots)
	assert.Contains(t, string(summary.Statistics), `"winner":"A"`)

	var session model.Session
	require.NoError(t, m.DB.First(&session).Error)
	assert.Equal(t, "2024-01-15_14-30-45", session.SessionID)
	assert.True(t, session.EndTime.Equal(ended))
}

func TestClose_FlushesAndDumps(t *testing.T) {
	m := newTestManager(t)
	dumpPath := filepath.Join(t.TempDir(), "combat.db")
	b := New(m, Config{DumpPath: dumpPath, DumpInterval: time.Hour}, nil)
	require.NoError(t, b.Init(testSession()))
	assert.Equal(t, dumpPath, b.ExportedFilePath())

	require.NoError(t, b.RecordEvent(testEvent(1, core.EventShot)))
	require.NoError(t, b.Close())

	_, err := os.Stat(dumpPath)
	require.NoError(t, err)

	disk := database.NewManager(zerolog.Nop())
	require.NoError(t, disk.ConnectSqlite(dumpPath, ""))
	defer disk.Close()

	var count int64
	require.NoError(t, disk.DB.Model(&model.CombatEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpLoop(t *testing.T) {
	m := newTestManager(t)
	dumpPath := filepath.Join(t.TempDir(), "periodic.db")
	b := New(m, Config{DumpPath: dumpPath, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, b.Init(testSession()))
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dumpPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
