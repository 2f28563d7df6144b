// Package sim runs the turn-based battle: unit activation, targeting,
// combat resolution, movement and victory checks.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/internal/rules"
	"github.com/OCAP2/combatsim/pkg/core"
)

var (
	// ErrNotInitialized is returned by Step before Initialize.
	ErrNotInitialized = errors.New("simulation not initialized")
	// ErrNotRunning is returned by Step once the battle has ended.
	ErrNotRunning = errors.New("simulation not running")
	// ErrNilRules is returned by Initialize without a rule table.
	ErrNilRules = errors.New("engagement rule table is required")
)

// State is the simulation lifecycle state.
type State int

const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultDefeatThreshold is the share of initial potential below which a
// side is flagged in statistics.
const DefaultDefeatThreshold = 0.30

// DefaultPotential weights each unit type's contribution to side potential.
func DefaultPotential() map[core.UnitType]float64 {
	return map[core.UnitType]float64{
		core.UnitTypeInfantry:   0.5,
		core.UnitTypeMechanized: 2,
		core.UnitTypeTank:       6,
		core.UnitTypeMortar:     2,
		core.UnitTypeArtillery:  3,
		core.UnitTypeAerial:     4,
	}
}

// Options configures a Simulation.
type Options struct {
	Seed   uint64
	Sink   EventSink
	Logger *slog.Logger
	// Clock stamps events; defaults to time.Now.
	Clock func() time.Time
	// Potential weights per unit type; defaults to DefaultPotential.
	Potential       map[core.UnitType]float64
	DefeatThreshold float64
	// DrawOnMutualElimination declares no winner when both sides are wiped
	// out in the same step instead of awarding the battle to side A.
	DrawOnMutualElimination bool
}

// Simulation owns all units and advances the battle one step at a time.
// It is not safe for concurrent use; callers publish snapshots instead.
type Simulation struct {
	opts     Options
	log      *slog.Logger
	rng      *rand.Rand
	sink     EventSink
	resolver *Resolver
	rules    *rules.Table

	state  State
	step   int
	winner core.Side
	units  []*Unit
	byID   map[int]*Unit
	events []core.CombatEvent

	initialPotential map[core.Side]float64
}

// New creates a simulation in StateNew.
func New(opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Potential == nil {
		opts.Potential = DefaultPotential()
	}
	if opts.DefeatThreshold <= 0 {
		opts.DefeatThreshold = DefaultDefeatThreshold
	}
	if opts.Sink == nil {
		opts.Sink = Discard
	}
	return &Simulation{
		opts: opts,
		log:  opts.Logger,
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		sink: opts.Sink,
	}
}

// stepRecorder keeps the transient per-step buffer and forwards to the sink.
type stepRecorder struct {
	s *Simulation
}

func (r stepRecorder) LogEvent(e core.CombatEvent) {
	r.s.events = append(r.s.events, e)
	r.s.sink.LogEvent(e)
}

// Initialize creates units from records and arms the simulation. Records
// that cannot form a unit are skipped and reported in the returned error;
// the simulation is still usable. Calling Initialize again resets the
// battle.
func (s *Simulation) Initialize(records []core.UnitRecord, table *rules.Table) error {
	if table == nil {
		return ErrNilRules
	}

	var errs []error
	units := make([]*Unit, 0, len(records))
	byID := make(map[int]*Unit, len(records))
	for _, rec := range records {
		u, err := NewUnit(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := byID[u.ID]; dup {
			errs = append(errs, fmt.Errorf("unit %d (%s): duplicate id", u.ID, u.Name))
			continue
		}
		if !u.Type.Known() {
			s.log.Warn("Unit has unknown type and cannot engage",
				"id", u.ID, "name", u.Name, "type", rec.Type)
		}
		units = append(units, u)
		byID[u.ID] = u
	}

	s.rules = table
	s.units = units
	s.byID = byID
	s.step = 0
	s.winner = core.SideNone
	s.events = nil
	s.state = StateInitialized
	s.resolver = NewResolver(table, s.rng, stepRecorder{s}, s.opts.Clock)
	s.initialPotential = map[core.Side]float64{
		core.SideA: s.potential(core.SideA),
		core.SideB: s.potential(core.SideB),
	}

	s.log.Info("Simulation initialized",
		"units", len(units),
		"skipped", len(errs),
		"rules", table.Len(),
		"seed", s.opts.Seed)
	return errors.Join(errs...)
}

// Step advances the battle by one step.
func (s *Simulation) Step() error {
	switch s.state {
	case StateNew:
		return ErrNotInitialized
	case StateEnded:
		return ErrNotRunning
	}
	s.state = StateRunning
	s.step++
	s.events = s.events[:0]
	s.resolver.SetStep(s.step)

	order := make([]*Unit, len(s.units))
	copy(order, s.units)
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	for _, u := range order {
		if u.Alive {
			s.act(u)
		}
	}

	var shots, hits, kills int
	for _, e := range s.events {
		switch e.Type {
		case core.EventShot:
			shots++
		case core.EventHit:
			hits++
		case core.EventDestroyed:
			kills++
		}
	}
	aliveA, aliveB := s.alive(core.SideA), s.alive(core.SideB)
	s.log.Debug("Step complete",
		"step", s.step,
		"shots", shots,
		"hits", hits,
		"kills", kills,
		"alive_a", aliveA,
		"alive_b", aliveB)

	s.checkVictory(aliveA, aliveB)
	return nil
}

func (s *Simulation) act(u *Unit) {
	target := s.currentTarget(u)
	if target == nil {
		target = SelectTarget(u, s.units, s.rules)
		u.setTarget(target)
	}
	if target != nil {
		s.resolver.Attack(u, target)
		return
	}
	s.moveTowardEnemy(u)
}

// currentTarget resolves the unit's target id and drops it when the target
// no longer exists or has been destroyed.
func (s *Simulation) currentTarget(u *Unit) *Unit {
	id, ok := u.TargetID()
	if !ok {
		return nil
	}
	t, found := s.byID[id]
	if !found || !t.Alive {
		u.clearTarget()
		return nil
	}
	return t
}

func (s *Simulation) moveTowardEnemy(u *Unit) {
	enemy := nearestEnemy(u, s.units)
	if enemy == nil {
		return
	}
	next, heading, moved := geo.Advance(u.Position, enemy.Position, u.Speed)
	if !moved {
		return
	}
	u.Position = next
	u.Heading = heading
}

func (s *Simulation) checkVictory(aliveA, aliveB int) {
	if aliveA > 0 && aliveB > 0 {
		return
	}
	s.state = StateEnded
	switch {
	case aliveA > 0:
		s.winner = core.SideA
	case aliveB > 0:
		s.winner = core.SideB
	case len(s.units) == 0 || s.opts.DrawOnMutualElimination:
		s.winner = core.SideNone
	default:
		s.winner = core.SideA
	}
	s.log.Info("Simulation ended",
		"step", s.step,
		"winner", s.winnerLabel(),
		"alive_a", aliveA,
		"alive_b", aliveB)
}

func (s *Simulation) winnerLabel() string {
	if s.winner == core.SideNone {
		return "none"
	}
	return "side " + string(s.winner)
}

// IsRunning reports whether Step may still be called.
func (s *Simulation) IsRunning() bool {
	return s.state == StateInitialized || s.state == StateRunning
}

// State returns the lifecycle state.
func (s *Simulation) State() State { return s.state }

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int { return s.step }

// Winner returns the winning side once the battle has ended. SideNone
// means no winner or not yet decided.
func (s *Simulation) Winner() core.Side { return s.winner }

// Seed returns the generator seed.
func (s *Simulation) Seed() uint64 { return s.opts.Seed }

// Rules returns the engagement table in use.
func (s *Simulation) Rules() *rules.Table { return s.rules }

// Units returns copies of all units in insertion order.
func (s *Simulation) Units() []Unit {
	out := make([]Unit, len(s.units))
	for i, u := range s.units {
		out[i] = *u
	}
	return out
}

// Unit returns a copy of the unit with the given id.
func (s *Simulation) Unit(id int) (Unit, bool) {
	u, ok := s.byID[id]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

// Events returns a copy of the current step's events.
func (s *Simulation) Events() []core.CombatEvent {
	out := make([]core.CombatEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ShutdownLogging stops the event sink if it owns resources. It is safe to
// call more than once when the sink's Shutdown is idempotent.
func (s *Simulation) ShutdownLogging(ctx context.Context) error {
	sd, ok := s.sink.(Shutdowner)
	if !ok {
		return nil
	}
	return sd.Shutdown(ctx)
}

func (s *Simulation) alive(side core.Side) int {
	n := 0
	for _, u := range s.units {
		if u.Side == side && u.Alive {
			n++
		}
	}
	return n
}

func (s *Simulation) potential(side core.Side) float64 {
	var p float64
	for _, u := range s.units {
		if u.Side == side && u.Alive {
			p += s.opts.Potential[u.Type]
		}
	}
	return p
}
