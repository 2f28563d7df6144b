// pkg/core/stats.go
package core

// TypeCasualties counts losses for one unit type.
type TypeCasualties struct {
	Total     int `json:"total"`
	Destroyed int `json:"destroyed"`
	Damaged   int `json:"damaged"`
}

// SideCasualties counts losses for one side.
type SideCasualties struct {
	Total     int                         `json:"total"`
	Destroyed int                         `json:"destroyed"`
	Damaged   int                         `json:"damaged"`
	ByType    map[UnitType]TypeCasualties `json:"by_type"`
}

// CasualtyStatistics is keyed by side.
type CasualtyStatistics map[Side]SideCasualties

// TypeStatistics summarises one unit type on one side.
type TypeStatistics struct {
	Total     int `json:"total"`
	Alive     int `json:"alive"`
	Destroyed int `json:"destroyed"`
	Kills     int `json:"kills"`
}

// SideStatistics summarises one side.
type SideStatistics struct {
	TotalUnits           int                         `json:"total_units"`
	Alive                int                         `json:"alive"`
	Destroyed            int                         `json:"destroyed"`
	TotalKills           int                         `json:"total_kills"`
	TotalShots           int                         `json:"total_shots"`
	TotalHits            int                         `json:"total_hits"`
	AccuracyPercent      float64                     `json:"accuracy"`
	Potential            float64                     `json:"potential"`
	InitialPotential     float64                     `json:"initial_potential"`
	PotentialRatio       float64                     `json:"potential_ratio"`
	BelowDefeatThreshold bool                        `json:"below_defeat_threshold"`
	ByType               map[UnitType]TypeStatistics `json:"by_type"`
}

// UnitScore ranks a unit by kills.
type UnitScore struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Side      Side     `json:"side"`
	Type      UnitType `json:"type"`
	Kills     int      `json:"kills"`
	HPPercent float64  `json:"hp_percent"`
}

// Statistics is the full battle report.
type Statistics struct {
	Step       int                     `json:"step"`
	Running    bool                    `json:"running"`
	Winner     Side                    `json:"winner,omitempty"`
	Sides      map[Side]SideStatistics `json:"sides"`
	TopKillers []UnitScore             `json:"top_killers"`
}
