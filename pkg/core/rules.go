// pkg/core/rules.go
package core

// RuleRecord is one row of an engagement table as loaded from a scenario.
type RuleRecord struct {
	Attacker         string  `json:"attacker" mapstructure:"attacker"`
	Target           string  `json:"target" mapstructure:"target"`
	HitProbability   float64 `json:"hit_probability" mapstructure:"hit_probability"`
	DamageMultiplier float64 `json:"damage_multiplier" mapstructure:"damage_multiplier"`
	MinRange         float64 `json:"min_range" mapstructure:"min_range"`
	MaxRange         float64 `json:"max_range" mapstructure:"max_range"`
	Priority         int     `json:"priority" mapstructure:"priority"`
	Notes            string  `json:"notes,omitempty" mapstructure:"notes"`
}

// ModifierRecord is one situational modifier (terrain, weather, time of
// day, unit status, flanking, experience).
type ModifierRecord struct {
	Category       string  `json:"category" mapstructure:"category"`
	Condition      string  `json:"condition" mapstructure:"condition"`
	HitModifier    float64 `json:"hit_modifier" mapstructure:"hit_modifier"`
	DamageModifier float64 `json:"damage_modifier" mapstructure:"damage_modifier"`
	Description    string  `json:"description,omitempty" mapstructure:"description"`
}
