package sim

import (
	"github.com/OCAP2/combatsim/internal/geo"
	"github.com/OCAP2/combatsim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// UnitProperties are the GeoJSON feature properties of a living unit.
type UnitProperties struct {
	ID              int           `json:"id"`
	Name            string        `json:"name"`
	Side            core.Side     `json:"side"`
	Type            core.UnitType `json:"type"`
	HP              float64       `json:"hp"`
	MaxHP           float64       `json:"max_hp"`
	HPPercent       float64       `json:"hp_percent"`
	Heading         float64       `json:"heading"`
	Kills           int           `json:"kills"`
	Shots           int           `json:"shots"`
	Hits            int           `json:"hits"`
	AccuracyPercent float64       `json:"accuracy_percent"`
	PersonnelCount  int           `json:"personnel_count"`
	HasTarget       bool          `json:"has_target"`
	IsAlive         bool          `json:"is_alive"`
	X               float64       `json:"x"`
	Y               float64       `json:"y"`
}

// Feature is a GeoJSON feature for one unit.
type Feature struct {
	Type       string         `json:"type"`
	ID         int            `json:"id"`
	Geometry   geom.Geometry  `json:"geometry"`
	Properties UnitProperties `json:"properties"`
}

// StateExport is a presentation snapshot: a GeoJSON FeatureCollection of
// living units plus the current step's events.
type StateExport struct {
	Type     string           `json:"type"`
	Features []Feature        `json:"features"`
	Events   []core.StepEvent `json:"events"`
	Step     int              `json:"step"`
	Running  bool             `json:"running"`
	Winner   core.Side        `json:"winner,omitempty"`
}

// ExportState builds the snapshot for the current step.
func (s *Simulation) ExportState() StateExport {
	out := StateExport{
		Type:     "FeatureCollection",
		Features: []Feature{},
		Events:   make([]core.StepEvent, 0, len(s.events)),
		Step:     s.step,
		Running:  s.IsRunning(),
		Winner:   s.winner,
	}
	for _, u := range s.units {
		if !u.Alive {
			continue
		}
		hasTarget := s.hasLiveTarget(u)
		var x, y float64
		if p, err := geo.Coords3857From4326(u.Position.Lon, u.Position.Lat); err == nil {
			if xy, ok := p.XY(); ok {
				x, y = round(xy.X, 1), round(xy.Y, 1)
			}
		}
		out.Features = append(out.Features, Feature{
			Type:     "Feature",
			ID:       u.ID,
			Geometry: geo.Point(u.Position).AsGeometry(),
			Properties: UnitProperties{
				ID:              u.ID,
				Name:            u.Name,
				Side:            u.Side,
				Type:            u.Type,
				HP:              u.HP,
				MaxHP:           u.MaxHP,
				HPPercent:       u.HPPercent(),
				Heading:         u.Heading,
				Kills:           u.Kills,
				Shots:           u.ShotsFired,
				Hits:            u.HitsLanded,
				AccuracyPercent: u.AccuracyPercent(),
				PersonnelCount:  u.PersonnelCount,
				HasTarget:       hasTarget,
				IsAlive:         u.Alive,
				X:               x,
				Y:               y,
			},
		})
	}
	for _, e := range s.events {
		out.Events = append(out.Events, core.StepEvent{
			Type:        e.Type,
			AttackerID:  e.Attacker.ID,
			AttackerPos: e.Attacker.Position,
			TargetID:    e.Target.ID,
			TargetPos:   e.Target.Position,
			Success:     e.Success(),
			Step:        e.Step,
		})
	}
	return out
}

// hasLiveTarget reports whether the unit's target still exists and is alive.
// Unlike currentTarget it leaves the unit untouched.
func (s *Simulation) hasLiveTarget(u *Unit) bool {
	id, ok := u.TargetID()
	if !ok {
		return false
	}
	t, found := s.byID[id]
	return found && t.Alive
}
