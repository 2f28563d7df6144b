package rules

import "github.com/OCAP2/combatsim/pkg/core"

func rec(attacker, target core.UnitType, hit, dmg, minR, maxR float64, prio int, notes string) core.RuleRecord {
	return core.RuleRecord{
		Attacker:         string(attacker),
		Target:           string(target),
		HitProbability:   hit,
		DamageMultiplier: dmg,
		MinRange:         minR,
		MaxRange:         maxR,
		Priority:         prio,
		Notes:            notes,
	}
}

// DefaultRecords is the reference engagement table covering all 36 pairs.
func DefaultRecords() []core.RuleRecord {
	const (
		tank = core.UnitTypeTank
		mech = core.UnitTypeMechanized
		inf  = core.UnitTypeInfantry
		mort = core.UnitTypeMortar
		arty = core.UnitTypeArtillery
		air  = core.UnitTypeAerial
	)
	return []core.RuleRecord{
		rec(tank, tank, 0.75, 1.2, 0.5, 2.5, 1, "main gun duel"),
		rec(tank, mech, 0.85, 1.5, 0.5, 2.5, 2, "main gun vs light armor"),
		rec(tank, inf, 0.60, 0.8, 0.2, 1.5, 4, "coaxial MG and HE"),
		rec(tank, mort, 0.70, 1.3, 0.5, 2.5, 3, "direct fire on exposed position"),
		rec(tank, arty, 0.70, 1.3, 0.5, 2.5, 3, "direct fire on exposed position"),
		rec(tank, air, 0.20, 0.5, 0.1, 1.0, 5, "roof MG only"),

		rec(mech, tank, 0.35, 0.6, 0.3, 1.5, 5, "ATGM, outgunned"),
		rec(mech, mech, 0.70, 1.0, 0.3, 1.8, 2, "autocannon duel"),
		rec(mech, inf, 0.80, 1.2, 0.2, 1.5, 1, "autocannon vs infantry"),
		rec(mech, mort, 0.65, 1.1, 0.3, 1.8, 3, "autocannon on crew position"),
		rec(mech, arty, 0.60, 1.0, 0.3, 1.8, 3, "autocannon on gun line"),
		rec(mech, air, 0.25, 0.6, 0.1, 1.2, 4, "autocannon at low flyer"),

		rec(inf, tank, 0.25, 0.4, 0.1, 0.4, 4, "RPG at close range"),
		rec(inf, mech, 0.40, 0.7, 0.1, 0.4, 3, "RPG vs light armor"),
		rec(inf, inf, 0.65, 1.0, 0.05, 0.4, 1, "small arms"),
		rec(inf, mort, 0.50, 0.8, 0.05, 0.3, 2, "assault on crew"),
		rec(inf, arty, 0.45, 0.7, 0.05, 0.3, 2, "assault on gun line"),
		rec(inf, air, 0.15, 0.3, 0.05, 0.2, 5, "small arms at drone"),

		rec(mort, tank, 0.30, 0.5, 1, 5, 4, "indirect HE vs armor"),
		rec(mort, mech, 0.40, 0.7, 1, 5, 3, "indirect HE vs light armor"),
		rec(mort, inf, 0.70, 1.5, 1, 5, 1, "indirect HE vs troops"),
		rec(mort, mort, 0.50, 1.0, 1, 5, 2, "counter-battery"),
		rec(mort, arty, 0.45, 0.9, 1, 5, 2, "counter-battery"),
		rec(mort, air, 0.05, 0.2, 0, 0, 5, "cannot engage air"),

		rec(arty, tank, 0.40, 0.8, 3, 18, 3, "heavy HE vs armor"),
		rec(arty, mech, 0.50, 1.0, 3, 18, 3, "heavy HE vs light armor"),
		rec(arty, inf, 0.75, 2.0, 3, 18, 2, "heavy HE vs troops"),
		rec(arty, mort, 0.60, 1.3, 3, 18, 1, "counter-battery"),
		rec(arty, arty, 0.65, 1.2, 3, 18, 1, "counter-battery"),
		rec(arty, air, 0.05, 0.2, 0, 0, 5, "cannot engage air"),

		rec(air, tank, 0.60, 0.9, 0.5, 12, 2, "top attack munition"),
		rec(air, mech, 0.65, 1.0, 0.5, 12, 2, "top attack munition"),
		rec(air, inf, 0.55, 0.8, 0.5, 12, 3, "loitering munition"),
		rec(air, mort, 0.70, 1.2, 0.5, 12, 1, "strike on spotted battery"),
		rec(air, arty, 0.70, 1.2, 0.5, 12, 1, "strike on spotted battery"),
		rec(air, air, 0.20, 0.5, 0.5, 8, 4, "air to air"),
	}
}

// DefaultModifierRecords is the reference situational modifier table.
func DefaultModifierRecords() []core.ModifierRecord {
	return []core.ModifierRecord{
		{Category: "terrain", Condition: "urban", HitModifier: 0.7, DamageModifier: 1.0, Description: "cover in built-up areas"},
		{Category: "terrain", Condition: "forest", HitModifier: 0.8, DamageModifier: 1.0, Description: "concealment in woodland"},
		{Category: "terrain", Condition: "open", HitModifier: 1.2, DamageModifier: 1.0, Description: "no cover"},
		{Category: "weather", Condition: "rain", HitModifier: 0.85, DamageModifier: 1.0, Description: "reduced visibility"},
		{Category: "weather", Condition: "fog", HitModifier: 0.6, DamageModifier: 1.0, Description: "severely reduced visibility"},
		{Category: "time", Condition: "night", HitModifier: 0.7, DamageModifier: 1.0, Description: "darkness"},
		{Category: "status", Condition: "damaged", HitModifier: 0.8, DamageModifier: 1.0, Description: "degraded fire control"},
		{Category: "status", Condition: "suppressed", HitModifier: 0.5, DamageModifier: 1.0, Description: "under fire"},
		{Category: "flanking", Condition: "side", HitModifier: 1.0, DamageModifier: 1.3, Description: "side armor"},
		{Category: "flanking", Condition: "rear", HitModifier: 1.0, DamageModifier: 1.5, Description: "rear armor"},
		{Category: "experience", Condition: "veteran", HitModifier: 1.15, DamageModifier: 1.0, Description: "experienced crew"},
		{Category: "experience", Condition: "elite", HitModifier: 1.3, DamageModifier: 1.0, Description: "elite crew"},
	}
}

// Default returns the reference table with its modifiers.
func Default() *Table {
	t, _ := New(DefaultRecords(), DefaultModifierRecords())
	return t
}
