package sim

import (
	"math/rand/v2"
	"time"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/internal/rules"
	"github.com/OCAP2/combatsim/pkg/core"
)

// ArmorFactor is the share of target armor subtracted from raw damage.
const ArmorFactor = 0.5

// Reasons an attack was not attempted.
const (
	ReasonNoTarget     = "no target"
	ReasonAttackerDead = "attacker destroyed"
	ReasonTargetDead   = "target destroyed"
	ReasonNoRule       = "no engagement rule"
	ReasonOutOfRange   = "out of rule range"
	ReasonFriendlyFire = "same side"
)

// AttackOutcome describes one call to Resolver.Attack. Attempted is false
// when the attack was a no-op; Reason then says why.
type AttackOutcome struct {
	Attempted bool
	Hit       bool
	Destroyed bool
	Distance  float64
	HitChance float64
	Damage    float64
	Reason    string
}

// Resolver computes hits and damage. All randomness comes from the shared
// generator so that a fixed seed reproduces a battle exactly.
type Resolver struct {
	rules *rules.Table
	rng   *rand.Rand
	sink  EventSink
	now   func() time.Time
	step  int
}

// NewResolver creates a resolver. A nil sink discards events and a nil clock
// uses time.Now.
func NewResolver(table *rules.Table, rng *rand.Rand, sink EventSink, clock func() time.Time) *Resolver {
	if sink == nil {
		sink = Discard
	}
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{rules: table, rng: rng, sink: sink, now: clock}
}

// SetStep sets the step number stamped on emitted events.
func (r *Resolver) SetStep(step int) { r.step = step }

// Attack resolves one attack of attacker on target.
//
// A shot is counted and reported before the hit roll. On a hit the damage is
// attackPower*multiplier minus half the target armor, never negative.
func (r *Resolver) Attack(attacker, target *Unit) AttackOutcome {
	switch {
	case attacker == nil || target == nil:
		return AttackOutcome{Reason: ReasonNoTarget}
	case !attacker.Alive:
		return AttackOutcome{Reason: ReasonAttackerDead}
	case !target.Alive:
		return AttackOutcome{Reason: ReasonTargetDead}
	case attacker.Side == target.Side:
		return AttackOutcome{Reason: ReasonFriendlyFire}
	}

	distance := geo.DistanceKm(attacker.Position, target.Position)
	rule, ok := r.rules.Lookup(attacker.Type, target.Type)
	if !ok {
		return AttackOutcome{Distance: distance, Reason: ReasonNoRule}
	}
	if distance < rule.MinRange || distance > rule.MaxRange {
		return AttackOutcome{Distance: distance, Reason: ReasonOutOfRange}
	}

	out := AttackOutcome{
		Attempted: true,
		Distance:  distance,
		HitChance: rule.BaseHitProbability * attacker.Accuracy,
	}

	attacker.ShotsFired++
	r.emit(core.EventShot, attacker, target, out)

	if r.rng.Float64() >= out.HitChance {
		return out
	}

	out.Hit = true
	raw := attacker.AttackPower * rule.DamageMultiplier
	out.Damage = max(0, raw-target.Armor*ArmorFactor)
	out.Destroyed = target.TakeDamage(out.Damage)
	attacker.HitsLanded++
	r.emit(core.EventHit, attacker, target, out)

	if out.Destroyed {
		attacker.Kills++
		r.emit(core.EventDestroyed, attacker, target, out)
	}
	return out
}

func (r *Resolver) emit(typ core.EventType, attacker, target *Unit, out AttackOutcome) {
	e := core.CombatEvent{
		Timestamp: r.now(),
		Step:      r.step,
		Type:      typ,
		Attacker:  attacker.Snapshot(),
		Target:    target.Snapshot(),
		Distance:  out.Distance,
		HitChance: out.HitChance,
	}
	if typ != core.EventShot {
		e.Damage = out.Damage
	}
	r.sink.LogEvent(e)
}
