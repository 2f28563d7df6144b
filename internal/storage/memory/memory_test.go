// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/combatsim/internal/config"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Exporter interface
var _ storage.Exporter = (*Backend)(nil)

func testSession() core.Session {
	return core.Session{ID: "2024-01-15_14-30-45", StartedAt: time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)}
}

func event(step int, typ core.EventType, targetHP float64) *core.CombatEvent {
	return &core.CombatEvent{
		Step:     step,
		Type:     typ,
		Attacker: core.UnitSnapshot{ID: 1, Name: "A_tank_1", Type: core.UnitTypeTank, Side: core.SideA, Position: core.Position{Lon: 36.5, Lat: 47.5}, HP: 100, MaxHP: 100},
		Target:   core.UnitSnapshot{ID: 2, Name: "B_infantry_2", Type: core.UnitTypeInfantry, Side: core.SideB, Position: core.Position{Lon: 36.52, Lat: 47.5}, HP: targetHP, MaxHP: 50},
		Distance: 1.5,
		Damage:   50 - targetHP,
	}
}

func TestNew(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: "/tmp/test", CompressOutput: true})

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.units == nil {
		t.Error("units map not initialized")
	}
	if b.Name() != "memory" {
		t.Errorf("expected name memory, got %s", b.Name())
	}
}

func TestRecordBeforeInit(t *testing.T) {
	b := New(config.MemoryConfig{})
	if err := b.RecordEvent(event(1, core.EventShot, 50)); err != storage.ErrNotInitialized {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	// Close without a session exports nothing
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if b.ExportedFilePath() != "" {
		t.Error("expected no export path")
	}
}

func TestRecordEventTracksUnits(t *testing.T) {
	b := New(config.MemoryConfig{})
	if err := b.Init(testSession()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_ = b.RecordEvent(event(1, core.EventShot, 50))
	_ = b.RecordEvent(event(1, core.EventHit, 20))
	_ = b.RecordEvent(event(3, core.EventDestroyed, 0))

	if b.EventCount() != 3 {
		t.Fatalf("expected 3 events, got %d", b.EventCount())
	}

	target, ok := b.GetUnit(2)
	if !ok {
		t.Fatal("target not tracked")
	}
	if target.FirstStep != 1 {
		t.Errorf("expected first step 1, got %d", target.FirstStep)
	}
	// one state per step, last snapshot wins
	if len(target.States) != 2 {
		t.Fatalf("expected 2 states, got %d", len(target.States))
	}
	if target.States[0].HP != 20 {
		t.Errorf("expected hp 20 at step 1, got %f", target.States[0].HP)
	}
	if target.States[1].HP != 0 {
		t.Errorf("expected hp 0 at step 3, got %f", target.States[1].HP)
	}
}

func TestInitResetsSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.Init(testSession())
	_ = b.RecordEvent(event(1, core.EventShot, 50))

	_ = b.Init(testSession())
	if b.EventCount() != 0 {
		t.Errorf("expected events reset, got %d", b.EventCount())
	}
	if _, ok := b.GetUnit(1); ok {
		t.Error("expected units reset")
	}
}

func TestExportGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	_ = b.Init(testSession())
	_ = b.RecordEvent(event(1, core.EventShot, 50))
	_ = b.RecordEvent(event(2, core.EventHit, 30))
	_ = b.WriteSummary(&core.SessionSummary{SessionID: "2024-01-15_14-30-45", Counts: core.LogCounts{Total: 2}})

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := b.ExportedFilePath()
	if filepath.Base(path) != "combat_20240115_143045.json.gz" {
		t.Errorf("unexpected export name %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip: %v", err)
	}
	defer gz.Close()

	var export ReplayExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}

	if export.SessionID != "2024-01-15_14-30-45" {
		t.Errorf("unexpected session id %s", export.SessionID)
	}
	if export.EndStep != 2 {
		t.Errorf("expected end step 2, got %d", export.EndStep)
	}
	if len(export.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(export.Entities))
	}
	if export.Entities[0].ID != 1 || export.Entities[1].ID != 2 {
		t.Error("entities not sorted by id")
	}
	if export.Entities[1].Side != "B" || export.Entities[1].Type != "infantry" {
		t.Errorf("unexpected entity %+v", export.Entities[1])
	}
	if len(export.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(export.Events))
	}
	if export.Events[1][1] != "hit" {
		t.Errorf("expected hit event, got %v", export.Events[1][1])
	}
	if export.Summary == nil || export.Summary.Counts.Total != 2 {
		t.Error("summary missing from export")
	}
}

func TestExportPlainJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	b := New(config.MemoryConfig{OutputDir: dir})
	_ = b.Init(testSession())
	_ = b.RecordEvent(event(1, core.EventShot, 50))

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !strings.HasSuffix(b.ExportedFilePath(), ".json") {
		t.Errorf("expected .json export, got %s", b.ExportedFilePath())
	}
	data, err := os.ReadFile(b.ExportedFilePath())
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !strings.Contains(string(data), `"sessionId":"2024-01-15_14-30-45"`) {
		t.Error("export missing session id")
	}
	if strings.Contains(string(data), `"summary"`) {
		t.Error("export should omit a missing summary")
	}
}
