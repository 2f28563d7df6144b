package sim

import (
	"sort"

	"github.com/OCAP2/combatsim/pkg/core"
)

const topKillers = 3

// CasualtyStatistics counts total, destroyed and damaged units per side and
// type. A unit is damaged when it is alive below max hp.
func (s *Simulation) CasualtyStatistics() core.CasualtyStatistics {
	out := make(core.CasualtyStatistics, len(core.Sides))
	for _, side := range core.Sides {
		out[side] = core.SideCasualties{ByType: map[core.UnitType]core.TypeCasualties{}}
	}
	for _, u := range s.units {
		sc := out[u.Side]
		tc := sc.ByType[u.Type]
		sc.Total++
		tc.Total++
		switch {
		case !u.Alive:
			sc.Destroyed++
			tc.Destroyed++
		case u.HP < u.MaxHP:
			sc.Damaged++
			tc.Damaged++
		}
		sc.ByType[u.Type] = tc
		out[u.Side] = sc
	}
	return out
}

// Statistics builds the full battle report. Ratios are zero when their
// denominator is zero.
func (s *Simulation) Statistics() core.Statistics {
	st := core.Statistics{
		Step:    s.step,
		Running: s.IsRunning(),
		Winner:  s.winner,
		Sides:   make(map[core.Side]core.SideStatistics, len(core.Sides)),
	}
	for _, side := range core.Sides {
		st.Sides[side] = s.sideStatistics(side)
	}
	st.TopKillers = s.topKillers()
	return st
}

func (s *Simulation) sideStatistics(side core.Side) core.SideStatistics {
	ss := core.SideStatistics{ByType: map[core.UnitType]core.TypeStatistics{}}
	for _, u := range s.units {
		if u.Side != side {
			continue
		}
		ts := ss.ByType[u.Type]
		ss.TotalUnits++
		ts.Total++
		if u.Alive {
			ss.Alive++
			ts.Alive++
		} else {
			ss.Destroyed++
			ts.Destroyed++
		}
		ss.TotalKills += u.Kills
		ss.TotalShots += u.ShotsFired
		ss.TotalHits += u.HitsLanded
		ts.Kills += u.Kills
		ss.ByType[u.Type] = ts
	}
	if ss.TotalShots > 0 {
		ss.AccuracyPercent = round(float64(ss.TotalHits)/float64(ss.TotalShots)*100, 2)
	}
	ss.Potential = s.potential(side)
	ss.InitialPotential = s.initialPotential[side]
	if ss.InitialPotential > 0 {
		ss.PotentialRatio = round(ss.Potential/ss.InitialPotential, 4)
		ss.BelowDefeatThreshold = ss.PotentialRatio < s.opts.DefeatThreshold
	}
	return ss
}

func (s *Simulation) topKillers() []core.UnitScore {
	var scored []*Unit
	for _, u := range s.units {
		if u.Kills > 0 {
			scored = append(scored, u)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Kills > scored[j].Kills
	})
	if len(scored) > topKillers {
		scored = scored[:topKillers]
	}
	out := make([]core.UnitScore, 0, len(scored))
	for _, u := range scored {
		out = append(out, core.UnitScore{
			ID:        u.ID,
			Name:      u.Name,
			Side:      u.Side,
			Type:      u.Type,
			Kills:     u.Kills,
			HPPercent: u.HPPercent(),
		})
	}
	return out
}
