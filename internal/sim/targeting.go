package sim

import (
	"sort"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/internal/rules"
)

type candidate struct {
	unit     *Unit
	priority int
	distance float64
}

// SelectTarget picks the enemy a unit should engage: living opponents within
// the unit's attack range, ordered by rule priority and then distance. Ties
// keep the order of units. It returns nil when nothing is in range.
func SelectTarget(u *Unit, units []*Unit, table *rules.Table) *Unit {
	if u == nil || !u.Alive {
		return nil
	}
	var candidates []candidate
	for _, other := range units {
		if other == nil || other == u || !other.Alive || other.Side == u.Side {
			continue
		}
		d := geo.DistanceKm(u.Position, other.Position)
		if d > u.AttackRange {
			continue
		}
		candidates = append(candidates, candidate{
			unit:     other,
			priority: table.Priority(u.Type, other.Type),
			distance: d,
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].distance < candidates[j].distance
	})
	return candidates[0].unit
}

// nearestEnemy returns the closest living opponent regardless of range.
func nearestEnemy(u *Unit, units []*Unit) *Unit {
	var (
		best     *Unit
		bestDist float64
	)
	for _, other := range units {
		if other == nil || !other.Alive || other.Side == u.Side {
			continue
		}
		d := geo.DistanceKm(u.Position, other.Position)
		if best == nil || d < bestDist {
			best, bestDist = other, d
		}
	}
	return best
}
