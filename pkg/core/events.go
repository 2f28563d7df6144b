// pkg/core/events.go
package core

import (
	"time"
)

// EventType classifies a combat event.
type EventType string

const (
	EventShot      EventType = "shot"
	EventHit       EventType = "hit"
	EventDestroyed EventType = "destroyed"
)

// UnitSnapshot is a copy of a unit's identity and vitals taken when an
// event is emitted. It never refers back to the live unit.
type UnitSnapshot struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     UnitType `json:"type"`
	Side     Side     `json:"side"`
	Position Position `json:"position"`
	HP       float64  `json:"hp"`
	MaxHP    float64  `json:"max_hp"`
}

// CombatEvent records one shot, hit or destruction. Events are produced
// once and never mutated.
type CombatEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	Step      int          `json:"step"`
	Type      EventType    `json:"event_type"`
	Attacker  UnitSnapshot `json:"attacker"`
	Target    UnitSnapshot `json:"target"`
	Distance  float64      `json:"distance"`
	HitChance float64      `json:"hit_chance"`
	Damage    float64      `json:"damage,omitempty"`
}

// Success reports whether the event represents a landed attack.
func (e CombatEvent) Success() bool {
	return e.Type == EventHit || e.Type == EventDestroyed
}

// StepEvent is the compact event form included in state exports.
type StepEvent struct {
	Type        EventType `json:"type"`
	AttackerID  int       `json:"attacker_id"`
	AttackerPos Position  `json:"attacker_pos"`
	TargetID    int       `json:"target_id"`
	TargetPos   Position  `json:"target_pos"`
	Success     bool      `json:"success"`
	Step        int       `json:"step"`
}
