package model

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/pkg/core"
	"gorm.io/datatypes"
)

// CombatEventFromCore converts a core event into its table row.
func CombatEventFromCore(sessionID uint, e core.CombatEvent) CombatEvent {
	return CombatEvent{
		Time:             e.Timestamp,
		SessionID:        sessionID,
		Step:             uint(max(e.Step, 0)),
		EventType:        string(e.Type),
		AttackerID:       e.Attacker.ID,
		AttackerName:     e.Attacker.Name,
		AttackerType:     string(e.Attacker.Type),
		AttackerSide:     string(e.Attacker.Side),
		AttackerLon:      e.Attacker.Position.Lon,
		AttackerLat:      e.Attacker.Position.Lat,
		AttackerPosition: geo.Point(e.Attacker.Position).AsBinary(),
		TargetID:         e.Target.ID,
		TargetName:       e.Target.Name,
		TargetType:       string(e.Target.Type),
		TargetSide:       string(e.Target.Side),
		TargetLon:        e.Target.Position.Lon,
		TargetLat:        e.Target.Position.Lat,
		TargetPosition:   geo.Point(e.Target.Position).AsBinary(),
		TargetHP:         e.Target.HP,
		TargetMaxHP:      e.Target.MaxHP,
		Distance:         e.Distance,
		HitChance:        e.HitChance,
		Damage:           e.Damage,
	}
}

// ToCore converts a table row back into a core event.
func (e *CombatEvent) ToCore() core.CombatEvent {
	return core.CombatEvent{
		Timestamp: e.Time,
		Step:      int(e.Step),
		Type:      core.EventType(e.EventType),
		Attacker: core.UnitSnapshot{
			ID:       e.AttackerID,
			Name:     e.AttackerName,
			Type:     core.UnitType(e.AttackerType),
			Side:     core.Side(e.AttackerSide),
			Position: core.Position{Lon: e.AttackerLon, Lat: e.AttackerLat},
		},
		Target: core.UnitSnapshot{
			ID:       e.TargetID,
			Name:     e.TargetName,
			Type:     core.UnitType(e.TargetType),
			Side:     core.Side(e.TargetSide),
			Position: core.Position{Lon: e.TargetLon, Lat: e.TargetLat},
			HP:       e.TargetHP,
			MaxHP:    e.TargetMaxHP,
		},
		Distance:  e.Distance,
		HitChance: e.HitChance,
		Damage:    e.Damage,
	}
}

// SessionSummaryFromCore converts a logger summary into its table row. The
// battle statistics, when present, are stored as JSON.
func SessionSummaryFromCore(sessionID uint, s core.SessionSummary) (SessionSummary, error) {
	row := SessionSummary{
		SessionID:   sessionID,
		TotalEvents: s.Counts.Total,
		Shots:       s.Counts.Shots,
		Hits:        s.Counts.Hits,
		Destroyed:   s.Counts.Destroyed,
		Written:     s.Counts.Written,
		WriteErrors: s.Counts.WriteErrors,
		FlushErrors: s.Counts.FlushErrors,
		Rejected:    s.Counts.Rejected,
		Abandoned:   s.Counts.Abandoned,
	}
	if s.Battle != nil {
		data, err := json.Marshal(s.Battle)
		if err != nil {
			return row, fmt.Errorf("failed to marshal battle statistics: %w", err)
		}
		row.Statistics = datatypes.JSON(data)
	}
	return row, nil
}
