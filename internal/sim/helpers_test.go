package sim

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OCAP2/combatsim/internal/rules"
	"github.com/OCAP2/combatsim/pkg/core"
)

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

type captureSink struct {
	mu     sync.Mutex
	events []core.CombatEvent
}

func (c *captureSink) LogEvent(e core.CombatEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) types() []core.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func unit(id int, side core.Side, typ core.UnitType, lon, lat float64) *Unit {
	return &Unit{
		ID:          id,
		Name:        string(side) + "_" + string(typ),
		Side:        side,
		Type:        typ,
		Position:    core.Position{Lon: lon, Lat: lat},
		Speed:       0.001,
		HP:          100,
		MaxHP:       100,
		AttackRange: 2.5,
		AttackPower: 50,
		Accuracy:    0.7,
		Armor:       30,
		Alive:       true,
	}
}

func singleRule(attacker, target core.UnitType, hit, dmg, minR, maxR float64) *rules.Table {
	t, err := rules.New([]core.RuleRecord{{
		Attacker:         string(attacker),
		Target:           string(target),
		HitProbability:   hit,
		DamageMultiplier: dmg,
		MinRange:         minR,
		MaxRange:         maxR,
		Priority:         1,
	}}, nil)
	if err != nil {
		panic(err)
	}
	return t
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// closeCombatRecords mirrors the sample scenario shipped with the CLI.
func closeCombatRecords() []core.UnitRecord {
	const (
		ax, ay = 36.5, 47.5
		bx, by = 36.52, 47.5
	)
	tank := func(id int, name, side string, lon, lat float64) core.UnitRecord {
		return core.UnitRecord{ID: id, Name: name, Side: side, Type: "tank", Lon: lon, Lat: lat,
			Speed: 0.001, HP: 100, MaxHP: 100, Range: 2.5, AttackPower: 50, Accuracy: 0.7, Armor: 30, PersonnelCount: 3}
	}
	bmp := func(id int, name, side string, lon, lat float64) core.UnitRecord {
		return core.UnitRecord{ID: id, Name: name, Side: side, Type: "bmp", Lon: lon, Lat: lat,
			Speed: 0.0015, HP: 80, MaxHP: 80, Range: 1.8, AttackPower: 30, Accuracy: 0.65, Armor: 20, PersonnelCount: 6}
	}
	infantry := func(id int, name, side string, lon, lat float64) core.UnitRecord {
		return core.UnitRecord{ID: id, Name: name, Side: side, Type: "infantry", Lon: lon, Lat: lat,
			Speed: 0.0005, HP: 50, MaxHP: 50, Range: 0.4, AttackPower: 20, Accuracy: 0.6, Armor: 5, PersonnelCount: 10}
	}
	return []core.UnitRecord{
		tank(1, "A_Tank_1", "A", ax, ay),
		bmp(2, "A_BMP_1", "A", ax+0.005, ay+0.005),
		infantry(3, "A_Infantry_1", "A", ax-0.005, ay-0.005),
		tank(11, "B_Tank_1", "B", bx, by),
		tank(12, "B_Tank_2", "B", bx+0.005, by+0.005),
		bmp(13, "B_BMP_1", "B", bx-0.005, by-0.005),
	}
}
