package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_SampleScenario(t *testing.T) {
	sc, err := Load(filepath.Join("..", "..", "scenarios", "close_combat.json"))
	require.NoError(t, err)

	assert.Equal(t, "close_combat", sc.Name)
	assert.Len(t, sc.Units, 8)
	assert.True(t, sc.DefaultRules)
	assert.Empty(t, sc.Rules.Missing())
	assert.NotEmpty(t, sc.Rules.Modifiers())

	// max_hp defaults to hp
	assert.Equal(t, 100.0, sc.Units[0].MaxHP)
}

func TestLoad_YAMLWithRules(t *testing.T) {
	path := writeFile(t, "battle.yaml", `
name: duel
units:
  - {id: 1, side: A, type: tank, lon: 30, lat: 50, hp: 100, max_hp: 120, range: 3, attack_power: 50, accuracy: 0.9}
  - {id: 2, side: B, type: tank, lon: 30.01, lat: 50, hp: 100, range: 3, attack_power: 50, accuracy: 0.9}
rules:
  - {attacker: tank, target: tank, hit_probability: 0.5, damage_multiplier: 1.0, min_range: 0, max_range: 3, priority: 1}
modifiers:
  - {category: weather, condition: fog, hit_modifier: 0.7}
`)
	sc, err := Load(path)
	require.NoError(t, err)

	assert.False(t, sc.DefaultRules)
	assert.Equal(t, 1, sc.Rules.Len())
	r, ok := sc.Rules.Lookup(core.UnitTypeTank, core.UnitTypeTank)
	require.True(t, ok)
	assert.Equal(t, 0.5, r.BaseHitProbability)
	assert.Equal(t, 120.0, sc.Units[0].MaxHP)

	m, ok := sc.Rules.Modifier("Weather", "FOG")
	require.True(t, ok)
	assert.Equal(t, 0.7, m.HitModifier)
}

func TestLoad_SkipsInvalidUnits(t *testing.T) {
	path := writeFile(t, "bad.json", `{
  "units": [
    {"id": 1, "side": "A", "type": "tank", "lon": 30, "lat": 50, "hp": 100, "accuracy": 0.5},
    {"id": 2, "side": "C", "type": "tank", "lon": 30, "lat": 50, "hp": 100},
    {"id": 3, "side": "B", "type": "tank", "lon": 200, "lat": 50, "hp": 100},
    {"id": 4, "side": "B", "type": "tank", "lon": 30, "lat": 50, "hp": 0},
    {"id": 5, "side": "B", "type": "tank", "lon": 30, "lat": 50, "hp": 10, "accuracy": 1.5},
    {"id": 1, "side": "B", "type": "tank", "lon": 30, "lat": 50, "hp": 10},
    {"id": 6, "side": "B", "type": "tank", "lon": 30, "lat": 50, "hp": 10, "armor": -1},
    {"id": 7, "side": "sideB", "type": "hovercraft", "lon": 30, "lat": 50, "hp": 10}
  ]
}`)
	sc, err := Load(path)
	require.Error(t, err)
	require.NotNil(t, sc)

	msg := err.Error()
	assert.Contains(t, msg, `invalid side "C"`)
	assert.Contains(t, msg, "invalid coordinates")
	assert.Contains(t, msg, "hp must be positive")
	assert.Contains(t, msg, "outside [0,1]")
	assert.Contains(t, msg, "duplicate id 1")
	assert.Contains(t, msg, "invalid armor")

	// unknown types are kept; the simulation never engages them
	require.Len(t, sc.Units, 2)
	assert.Equal(t, 1, sc.Units[0].ID)
	assert.Equal(t, 7, sc.Units[1].ID)
}

func TestLoad_InvalidRulesReported(t *testing.T) {
	path := writeFile(t, "rules.json", `{
  "units": [],
  "rules": [
    {"attacker": "tank", "target": "tank", "hit_probability": 1.5, "max_range": 2},
    {"attacker": "tank", "target": "infantry", "hit_probability": 0.5, "max_range": 2}
  ]
}`)
	sc, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside [0,1]")
	assert.Equal(t, 1, sc.Rules.Len())
}

func TestLoad_NaNRuleRejected(t *testing.T) {
	path := writeFile(t, "nan.yaml", `
units: []
rules:
  - {attacker: tank, target: tank, hit_probability: .nan, max_range: .nan}
  - {attacker: tank, target: infantry, hit_probability: 0.5, min_range: 0, max_range: .inf}
  - {attacker: tank, target: mortar, hit_probability: 0.5, max_range: 2}
`)
	sc, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside [0,1]")
	assert.Contains(t, err.Error(), "non-finite range")

	assert.Equal(t, 1, sc.Rules.Len())
	_, ok := sc.Rules.Lookup(core.UnitTypeTank, core.UnitTypeTank)
	assert.False(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	sc, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Nil(t, sc)
}
