// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/OCAP2/combatsim/pkg/core"
)

// ReplayExport is the root JSON structure of a session replay.
type ReplayExport struct {
	SessionID string               `json:"sessionId"`
	StartedAt time.Time            `json:"startedAt"`
	EndStep   int                  `json:"endStep"`
	Entities  []EntityJSON         `json:"entities"`
	Events    [][]any              `json:"events"`
	Summary   *core.SessionSummary `json:"summary,omitempty"`
}

// EntityJSON represents one unit and its track.
type EntityJSON struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	MaxHP     float64 `json:"maxHp"`
	FirstStep int     `json:"firstStep"`
	// Positions holds [step, [lon, lat], hp] tuples.
	Positions [][]any `json:"positions"`
}

// exportJSON writes the session data to a JSON file, gzipped when configured.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.session.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("combat_%s.json.gz", timestamp)
	} else {
		filename = fmt.Sprintf("combat_%s.json", timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() ReplayExport {
	export := ReplayExport{
		SessionID: b.session.ID,
		StartedAt: b.session.StartedAt,
		Entities:  make([]EntityJSON, 0, len(b.units)),
		Events:    make([][]any, 0, len(b.events)),
		Summary:   b.summary,
	}

	ids := make([]int, 0, len(b.units))
	for id := range b.units {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		record := b.units[id]
		entity := EntityJSON{
			ID:        record.Unit.ID,
			Name:      record.Unit.Name,
			Side:      string(record.Unit.Side),
			Type:      string(record.Unit.Type),
			MaxHP:     record.Unit.MaxHP,
			FirstStep: record.FirstStep,
			Positions: make([][]any, 0, len(record.States)),
		}
		for _, state := range record.States {
			entity.Positions = append(entity.Positions, []any{
				state.Step,
				[]float64{state.Position.Lon, state.Position.Lat},
				state.HP,
			})
		}
		export.Entities = append(export.Entities, entity)
	}

	for _, e := range b.events {
		export.Events = append(export.Events, []any{
			e.Step,
			string(e.Type),
			e.Attacker.ID,
			e.Target.ID,
			e.Distance,
			e.Damage,
		})
		export.EndStep = max(export.EndStep, e.Step)
	}

	return export
}

func (b *Backend) writeJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
