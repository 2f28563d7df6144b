package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

func testSession() core.Session {
	return core.Session{ID: "2024-01-02_03-04-05", StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func testEvent(step int, typ core.EventType) *core.CombatEvent {
	return &core.CombatEvent{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC),
		Step:      step,
		Type:      typ,
		Attacker:  core.UnitSnapshot{ID: 1, Name: "A_tank_1", Type: core.UnitTypeTank, Side: core.SideA, HP: 100, MaxHP: 100},
		Target:    core.UnitSnapshot{ID: 2, Name: "B_tank_2", Type: core.UnitTypeTank, Side: core.SideB, HP: 60, MaxHP: 100},
		Distance:  1.5,
		HitChance: 0.56,
	}
}

func TestBackend_WritesOneLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Dir: dir, Fsync: true})
	require.NoError(t, b.Init(testSession()))

	require.NoError(t, b.RecordEvent(testEvent(1, core.EventShot)))
	require.NoError(t, b.Flush())
	require.NoError(t, b.RecordEvent(testEvent(1, core.EventHit)))
	require.NoError(t, b.Flush())

	// lines are on disk before Close
	data, err := os.ReadFile(b.ExportedFilePath())
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, b.ExportedFilePath()))
	assert.Contains(t, string(data), `"event_type":"shot"`)

	require.NoError(t, b.Close())
	assert.Equal(t, filepath.Join(dir, "combat_2024-01-02_03-04-05.jsonl"), b.ExportedFilePath())

	f, err := os.Open(b.ExportedFilePath())
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var decoded core.CombatEvent
	require.NoError(t, json.Unmarshal(sc.Bytes(), &decoded))
	assert.Equal(t, core.EventShot, decoded.Type)
	assert.Equal(t, 2, decoded.Target.ID)
	assert.Equal(t, 60.0, decoded.Target.HP)
}

func TestBackend_LatestPointer(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Dir: dir})
	require.NoError(t, b.Init(testSession()))
	defer b.Close()

	data, err := os.ReadFile(filepath.Join(dir, LatestFileName))
	require.NoError(t, err)
	abs, err := filepath.Abs(b.ExportedFilePath())
	require.NoError(t, err)
	assert.Equal(t, abs, string(data))
}

func TestBackend_WriteSummary(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Dir: dir})
	require.NoError(t, b.Init(testSession()))

	s := &core.SessionSummary{
		SessionID: "2024-01-02_03-04-05",
		EndedAt:   time.Date(2024, 1, 2, 3, 10, 0, 0, time.UTC),
		Counts:    core.LogCounts{Total: 3, Shots: 2, Hits: 1, Written: 3},
	}
	require.NoError(t, b.WriteSummary(s))
	require.NoError(t, b.Close())

	data, err := os.ReadFile(filepath.Join(dir, "combat_2024-01-02_03-04-05_summary.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2024-01-02_03-04-05", decoded["session_id"])
	assert.Contains(t, decoded, "timestamp")
	stats, ok := decoded["statistics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, stats["total_events"])
	assert.Equal(t, 2.0, stats["shots"])
	assert.NotContains(t, decoded, "battle")
}

func TestBackend_NotInitialized(t *testing.T) {
	b := New(Config{Dir: t.TempDir()})
	assert.ErrorIs(t, b.RecordEvent(testEvent(1, core.EventShot)), storage.ErrNotInitialized)
	assert.ErrorIs(t, b.Flush(), storage.ErrNotInitialized)
	assert.ErrorIs(t, b.WriteSummary(&core.SessionSummary{}), storage.ErrNotInitialized)
	assert.NoError(t, b.Close())
}

func TestBackend_InitFailsOnUnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	b := New(Config{Dir: filepath.Join(blocker, "combat")})
	assert.Error(t, b.Init(testSession()))
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}
