// Package rules holds the engagement rule table that decides whether and how
// effectively one unit type can attack another.
package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OCAP2/combatsim/pkg/core"
)

// LowestPriority is returned by Priority for pairs without a rule.
const LowestPriority = 999

// Pair keys a rule by attacker and target type.
type Pair struct {
	Attacker core.UnitType
	Target   core.UnitType
}

func (p Pair) String() string {
	return string(p.Attacker) + "->" + string(p.Target)
}

// Rule is the engagement parameters for one attacker/target pair.
type Rule struct {
	Attacker           core.UnitType
	Target             core.UnitType
	BaseHitProbability float64
	DamageMultiplier   float64
	MinRange           float64
	MaxRange           float64
	Priority           int
	Notes              string
}

// Modifier is a situational multiplier. Modifiers are loaded and can be
// queried but the resolver does not apply them.
type Modifier struct {
	Category       string
	Condition      string
	HitModifier    float64
	DamageModifier float64
	Description    string
}

type modifierKey struct {
	category  string
	condition string
}

// Table is an immutable engagement rule table. It is safe for concurrent
// readers once built.
type Table struct {
	rules     map[Pair]Rule
	modifiers map[modifierKey]Modifier
	modOrder  []modifierKey
}

// New builds a table from raw records. Invalid records are skipped; the
// returned error joins one error per skipped record. The table is never nil.
// A later record for the same pair replaces an earlier one.
func New(records []core.RuleRecord, modifiers []core.ModifierRecord) (*Table, error) {
	t := &Table{
		rules:     make(map[Pair]Rule, len(records)),
		modifiers: make(map[modifierKey]Modifier, len(modifiers)),
	}
	var errs []error

	for i, rec := range records {
		r, err := ruleFromRecord(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s->%s): %w", i, rec.Attacker, rec.Target, err))
			continue
		}
		t.rules[Pair{r.Attacker, r.Target}] = r
	}

	for i, rec := range modifiers {
		if strings.TrimSpace(rec.Category) == "" || strings.TrimSpace(rec.Condition) == "" {
			errs = append(errs, fmt.Errorf("modifier %d: category and condition are required", i))
			continue
		}
		if !(rec.HitModifier >= 0 && finite(rec.HitModifier)) || !(rec.DamageModifier >= 0 && finite(rec.DamageModifier)) {
			errs = append(errs, fmt.Errorf("modifier %d (%s/%s): invalid multiplier", i, rec.Category, rec.Condition))
			continue
		}
		k := modifierKey{normalize(rec.Category), normalize(rec.Condition)}
		if _, exists := t.modifiers[k]; !exists {
			t.modOrder = append(t.modOrder, k)
		}
		t.modifiers[k] = Modifier{
			Category:       rec.Category,
			Condition:      rec.Condition,
			HitModifier:    rec.HitModifier,
			DamageModifier: rec.DamageModifier,
			Description:    rec.Description,
		}
	}

	return t, errors.Join(errs...)
}

func ruleFromRecord(rec core.RuleRecord) (Rule, error) {
	attacker, ok := core.ParseUnitType(rec.Attacker)
	if !ok {
		return Rule{}, fmt.Errorf("unknown attacker type %q", rec.Attacker)
	}
	target, ok := core.ParseUnitType(rec.Target)
	if !ok {
		return Rule{}, fmt.Errorf("unknown target type %q", rec.Target)
	}
	// Comparisons are written so NaN fails them.
	if !(rec.HitProbability >= 0 && rec.HitProbability <= 1) {
		return Rule{}, fmt.Errorf("hit probability %v outside [0,1]", rec.HitProbability)
	}
	if !finite(rec.DamageMultiplier) || rec.DamageMultiplier < 0 {
		return Rule{}, fmt.Errorf("invalid damage multiplier %v", rec.DamageMultiplier)
	}
	if !finite(rec.MinRange) || !finite(rec.MaxRange) {
		return Rule{}, fmt.Errorf("non-finite range [%v, %v]", rec.MinRange, rec.MaxRange)
	}
	if rec.MinRange < 0 || rec.MaxRange < 0 {
		return Rule{}, fmt.Errorf("negative range [%v, %v]", rec.MinRange, rec.MaxRange)
	}
	if rec.MinRange > rec.MaxRange {
		return Rule{}, fmt.Errorf("min range %v exceeds max range %v", rec.MinRange, rec.MaxRange)
	}
	return Rule{
		Attacker:           attacker,
		Target:             target,
		BaseHitProbability: rec.HitProbability,
		DamageMultiplier:   rec.DamageMultiplier,
		MinRange:           rec.MinRange,
		MaxRange:           rec.MaxRange,
		Priority:           rec.Priority,
		Notes:              rec.Notes,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Lookup returns the rule for an attacker/target pair.
func (t *Table) Lookup(attacker, target core.UnitType) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	r, ok := t.rules[Pair{attacker, target}]
	return r, ok
}

// Priority returns the rule's priority, or LowestPriority when the pair
// cannot engage.
func (t *Table) Priority(attacker, target core.UnitType) int {
	r, ok := t.Lookup(attacker, target)
	if !ok {
		return LowestPriority
	}
	return r.Priority
}

// InRange reports whether distanceKm lies inside the rule's inclusive
// [MinRange, MaxRange] band. Pairs without a rule are never in range.
func (t *Table) InRange(attacker, target core.UnitType, distanceKm float64) bool {
	r, ok := t.Lookup(attacker, target)
	if !ok {
		return false
	}
	return distanceKm >= r.MinRange && distanceKm <= r.MaxRange
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Missing lists the attacker/target pairs of the known type grid that have
// no rule, in table order.
func (t *Table) Missing() []Pair {
	var missing []Pair
	for _, a := range core.UnitTypes {
		for _, tt := range core.UnitTypes {
			if _, ok := t.Lookup(a, tt); !ok {
				missing = append(missing, Pair{a, tt})
			}
		}
	}
	return missing
}

// Rules returns every rule ordered by attacker then target type.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := typeIndex(out[i].Attacker), typeIndex(out[j].Attacker)
		if ai != aj {
			return ai < aj
		}
		return typeIndex(out[i].Target) < typeIndex(out[j].Target)
	})
	return out
}

// Records converts the table back into loader records.
func (t *Table) Records() []core.RuleRecord {
	rules := t.Rules()
	out := make([]core.RuleRecord, len(rules))
	for i, r := range rules {
		out[i] = core.RuleRecord{
			Attacker:         string(r.Attacker),
			Target:           string(r.Target),
			HitProbability:   r.BaseHitProbability,
			DamageMultiplier: r.DamageMultiplier,
			MinRange:         r.MinRange,
			MaxRange:         r.MaxRange,
			Priority:         r.Priority,
			Notes:            r.Notes,
		}
	}
	return out
}

// Modifier looks up a situational modifier, case-insensitively.
func (t *Table) Modifier(category, condition string) (Modifier, bool) {
	if t == nil {
		return Modifier{}, false
	}
	m, ok := t.modifiers[modifierKey{normalize(category), normalize(condition)}]
	return m, ok
}

// Modifiers returns all modifiers in load order.
func (t *Table) Modifiers() []Modifier {
	if t == nil {
		return nil
	}
	out := make([]Modifier, 0, len(t.modOrder))
	for _, k := range t.modOrder {
		out = append(out, t.modifiers[k])
	}
	return out
}

func typeIndex(u core.UnitType) int {
	for i, k := range core.UnitTypes {
		if k == u {
			return i
		}
	}
	return len(core.UnitTypes)
}
