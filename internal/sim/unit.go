package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/pkg/core"
)

// Unit is a single combat entity. Units are owned by a Simulation; callers
// outside the package only ever see copies.
type Unit struct {
	ID             int
	Name           string
	Side           core.Side
	Type           core.UnitType
	Position       core.Position
	Heading        float64
	Speed          float64
	HP             float64
	MaxHP          float64
	AttackRange    float64
	AttackPower    float64
	Accuracy       float64
	Armor          float64
	PersonnelCount int
	Alive          bool

	Kills      int
	ShotsFired int
	HitsLanded int

	// current target, looked up by id and revalidated every step
	targetID  int
	hasTarget bool
}

var errInvalidSide = errors.New("invalid side")

// NewUnit builds a unit from an external record. Values out of their domain
// are clamped; an unknown type is kept as UnitTypeUnknown so the unit exists
// but can never engage. An invalid side or position is rejected.
func NewUnit(rec core.UnitRecord) (*Unit, error) {
	side, ok := core.ParseSide(rec.Side)
	if !ok {
		return nil, fmt.Errorf("unit %d (%s): %w %q", rec.ID, rec.Name, errInvalidSide, rec.Side)
	}
	pos := core.Position{Lon: rec.Lon, Lat: rec.Lat}
	if err := geo.Validate(pos); err != nil {
		return nil, fmt.Errorf("unit %d (%s): %w", rec.ID, rec.Name, err)
	}
	typ, _ := core.ParseUnitType(rec.Type)

	maxHP := finiteOrZero(rec.MaxHP)
	hp := finiteOrZero(rec.HP)
	if maxHP <= 0 {
		maxHP = hp
	}
	hp = clamp(hp, 0, maxHP)

	u := &Unit{
		ID:             rec.ID,
		Name:           rec.Name,
		Side:           side,
		Type:           typ,
		Position:       pos,
		Heading:        rec.Heading,
		Speed:          math.Max(0, finiteOrZero(rec.Speed)),
		HP:             hp,
		MaxHP:          maxHP,
		AttackRange:    math.Max(0, finiteOrZero(rec.Range)),
		AttackPower:    math.Max(0, finiteOrZero(rec.AttackPower)),
		Accuracy:       clamp(finiteOrZero(rec.Accuracy), 0, 1),
		Armor:          math.Max(0, finiteOrZero(rec.Armor)),
		PersonnelCount: max(0, rec.PersonnelCount),
		Alive:          hp > 0,
	}
	if u.Name == "" {
		u.Name = fmt.Sprintf("%s_%s_%d", side, typ, rec.ID)
	}
	return u, nil
}

// TakeDamage reduces hp, clamping at zero. It reports whether this call
// destroyed the unit.
func (u *Unit) TakeDamage(damage float64) bool {
	if !u.Alive || damage <= 0 || math.IsNaN(damage) {
		return false
	}
	u.HP -= damage
	if u.HP <= 0 {
		u.HP = 0
		u.Alive = false
		u.clearTarget()
		return true
	}
	return false
}

// TargetID returns the id of the current target, if any.
func (u *Unit) TargetID() (int, bool) {
	return u.targetID, u.hasTarget
}

func (u *Unit) setTarget(t *Unit) {
	if t == nil {
		u.clearTarget()
		return
	}
	u.targetID = t.ID
	u.hasTarget = true
}

func (u *Unit) clearTarget() {
	u.targetID = 0
	u.hasTarget = false
}

// HPPercent is hp relative to max hp, rounded to one decimal.
func (u *Unit) HPPercent() float64 {
	if u.MaxHP <= 0 {
		return 0
	}
	return round(u.HP/u.MaxHP*100, 1)
}

// AccuracyPercent is hits over shots, rounded to one decimal.
func (u *Unit) AccuracyPercent() float64 {
	if u.ShotsFired == 0 {
		return 0
	}
	return round(float64(u.HitsLanded)/float64(u.ShotsFired)*100, 1)
}

// Snapshot copies the fields recorded in combat events.
func (u *Unit) Snapshot() core.UnitSnapshot {
	return core.UnitSnapshot{
		ID:       u.ID,
		Name:     u.Name,
		Type:     u.Type,
		Side:     u.Side,
		Position: u.Position,
		HP:       round(u.HP, 2),
		MaxHP:    u.MaxHP,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
