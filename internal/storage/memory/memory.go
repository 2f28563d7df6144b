// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/OCAP2/combatsim/internal/config"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
)

// UnitRecord groups a unit's identity with every snapshot seen of it.
type UnitRecord struct {
	Unit      core.UnitSnapshot
	FirstStep int
	States    []UnitState
}

// UnitState is a unit snapshot taken at a given step.
type UnitState struct {
	Step     int
	Position core.Position
	HP       float64
}

// Backend stores a session in memory and exports a replay file on Close.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	units   map[int]*UnitRecord // keyed by unit id
	events  []core.CombatEvent
	summary *core.SessionSummary

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		units: make(map[int]*UnitRecord),
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "memory" }

// Init begins recording a new session
func (b *Backend) Init(session core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = &session
	b.units = make(map[int]*UnitRecord)
	b.events = nil
	b.summary = nil
	b.lastExportPath = ""
	return nil
}

// RecordEvent stores the event and the unit states it carries.
func (b *Backend) RecordEvent(e *core.CombatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNotInitialized
	}
	b.events = append(b.events, *e)
	b.track(e.Attacker, e.Step)
	b.track(e.Target, e.Step)
	return nil
}

func (b *Backend) track(u core.UnitSnapshot, step int) {
	record, ok := b.units[u.ID]
	if !ok {
		record = &UnitRecord{Unit: u, FirstStep: step}
		b.units[u.ID] = record
	}
	state := UnitState{Step: step, Position: u.Position, HP: u.HP}
	// keep the last snapshot per step
	if n := len(record.States); n > 0 && record.States[n-1].Step == step {
		record.States[n-1] = state
		return
	}
	record.States = append(record.States, state)
}

// Flush is a no-op; everything stays in memory until Close.
func (b *Backend) Flush() error {
	return nil
}

// WriteSummary keeps the summary for inclusion in the export.
func (b *Backend) WriteSummary(s *core.SessionSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	summary := *s
	b.summary = &summary
	return nil
}

// Close exports the session data
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// EventCount returns the number of stored events.
func (b *Backend) EventCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// GetUnit returns the record for a unit id.
func (b *Backend) GetUnit(id int) (*UnitRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.units[id]
	return record, ok
}

// ExportedFilePath returns the path of the last export, empty before Close.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
