// Package loader reads scenario files: the unit roster plus optional
// engagement rules and modifiers. JSON, YAML and TOML are accepted.
package loader

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/internal/rules"
	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/spf13/viper"
)

// Scenario is a fully loaded battle setup.
type Scenario struct {
	Name  string
	Units []core.UnitRecord
	Rules *rules.Table
	// DefaultRules is true when the file carried no rules.
	DefaultRules bool
}

// Load reads the scenario at path. Invalid unit, rule or modifier records
// are skipped and reported in the returned error, which is non-nil only
// alongside a usable Scenario unless the file itself cannot be read.
func Load(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading scenario file: %w", err)
	}
	return Decode(v)
}

// Decode builds a scenario from an already-read viper instance.
func Decode(v *viper.Viper) (*Scenario, error) {
	var (
		units     []core.UnitRecord
		ruleRecs  []core.RuleRecord
		modifiers []core.ModifierRecord
	)
	if err := v.UnmarshalKey("units", &units); err != nil {
		return nil, fmt.Errorf("error decoding units: %w", err)
	}
	if err := v.UnmarshalKey("rules", &ruleRecs); err != nil {
		return nil, fmt.Errorf("error decoding rules: %w", err)
	}
	if err := v.UnmarshalKey("modifiers", &modifiers); err != nil {
		return nil, fmt.Errorf("error decoding modifiers: %w", err)
	}

	sc := &Scenario{Name: v.GetString("name")}

	var errs []error
	seen := make(map[int]bool, len(units))
	for i, u := range units {
		if err := validateUnit(u); err != nil {
			errs = append(errs, fmt.Errorf("unit #%d (id %d): %w", i, u.ID, err))
			continue
		}
		if seen[u.ID] {
			errs = append(errs, fmt.Errorf("unit #%d: duplicate id %d", i, u.ID))
			continue
		}
		seen[u.ID] = true
		if u.MaxHP <= 0 {
			u.MaxHP = u.HP
		}
		sc.Units = append(sc.Units, u)
	}

	if len(ruleRecs) == 0 {
		sc.DefaultRules = true
		ruleRecs = rules.DefaultRecords()
	}
	if len(modifiers) == 0 {
		modifiers = rules.DefaultModifierRecords()
	}
	table, err := rules.New(ruleRecs, modifiers)
	if err != nil {
		errs = append(errs, err)
	}
	sc.Rules = table

	return sc, errors.Join(errs...)
}

func validateUnit(u core.UnitRecord) error {
	if _, ok := core.ParseSide(u.Side); !ok {
		return fmt.Errorf("invalid side %q", u.Side)
	}
	if err := geo.Validate(core.Position{Lon: u.Lon, Lat: u.Lat}); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"hp", u.HP},
		{"max_hp", u.MaxHP},
		{"speed", u.Speed},
		{"range", u.Range},
		{"attack_power", u.AttackPower},
		{"armor", u.Armor},
	} {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) || f.val < 0 {
			return fmt.Errorf("invalid %s %v", f.name, f.val)
		}
	}
	if u.Accuracy < 0 || u.Accuracy > 1 || math.IsNaN(u.Accuracy) {
		return fmt.Errorf("accuracy %v outside [0,1]", u.Accuracy)
	}
	if u.HP <= 0 {
		return errors.New("hp must be positive")
	}
	return nil
}
