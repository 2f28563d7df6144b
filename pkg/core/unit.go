// pkg/core/unit.go
package core

import "strings"

// Side identifies one of the two opposing forces.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

// Sides lists both forces in evaluation order.
var Sides = []Side{SideA, SideB}

// ParseSide accepts "A"/"B" in any case, optionally prefixed with "side".
func ParseSide(s string) (Side, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimPrefix(s, "SIDE"))
	switch s {
	case "A":
		return SideA, true
	case "B":
		return SideB, true
	}
	return SideNone, false
}

// Opponent returns the opposing side.
func (s Side) Opponent() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideNone
}

// UnitType is the category of a unit. All behavioural differences between
// types come from the engagement rule table.
type UnitType string

const (
	UnitTypeUnknown    UnitType = "unknown"
	UnitTypeTank       UnitType = "tank"
	UnitTypeMechanized UnitType = "mechanized"
	UnitTypeInfantry   UnitType = "infantry"
	UnitTypeMortar     UnitType = "mortar"
	UnitTypeArtillery  UnitType = "artillery"
	UnitTypeAerial     UnitType = "aerial"
)

// UnitTypes lists every known unit type in table order.
var UnitTypes = []UnitType{
	UnitTypeTank,
	UnitTypeMechanized,
	UnitTypeInfantry,
	UnitTypeMortar,
	UnitTypeArtillery,
	UnitTypeAerial,
}

var unitTypeAliases = map[string]UnitType{
	"tank":       UnitTypeTank,
	"mbt":        UnitTypeTank,
	"mechanized": UnitTypeMechanized,
	"mech":       UnitTypeMechanized,
	"bmp":        UnitTypeMechanized,
	"ifv":        UnitTypeMechanized,
	"infantry":   UnitTypeInfantry,
	"mortar":     UnitTypeMortar,
	"artillery":  UnitTypeArtillery,
	"aerial":     UnitTypeAerial,
	"uav":        UnitTypeAerial,
	"drone":      UnitTypeAerial,
}

// ParseUnitType maps a type name or one of its aliases to a UnitType.
// Unrecognised names yield UnitTypeUnknown and false.
func ParseUnitType(s string) (UnitType, bool) {
	t, ok := unitTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return UnitTypeUnknown, false
	}
	return t, true
}

// Known reports whether t is one of the six combat types.
func (t UnitType) Known() bool {
	for _, k := range UnitTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Position is a geographic coordinate in degrees.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// UnitRecord is the external description of a unit as handed to the
// simulation at initialization.
type UnitRecord struct {
	ID             int     `json:"id" mapstructure:"id"`
	Name           string  `json:"name" mapstructure:"name"`
	Side           string  `json:"side" mapstructure:"side"`
	Type           string  `json:"type" mapstructure:"type"`
	Lon            float64 `json:"lon" mapstructure:"lon"`
	Lat            float64 `json:"lat" mapstructure:"lat"`
	Speed          float64 `json:"speed" mapstructure:"speed"`
	Heading        float64 `json:"heading" mapstructure:"heading"`
	HP             float64 `json:"hp" mapstructure:"hp"`
	MaxHP          float64 `json:"max_hp" mapstructure:"max_hp"`
	Range          float64 `json:"range" mapstructure:"range"`
	AttackPower    float64 `json:"attack_power" mapstructure:"attack_power"`
	Accuracy       float64 `json:"accuracy" mapstructure:"accuracy"`
	Armor          float64 `json:"armor" mapstructure:"armor"`
	PersonnelCount int     `json:"personnel_count" mapstructure:"personnel_count"`
}
