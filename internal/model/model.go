package model

import (
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&CombatEvent{},
	&SessionSummary{},
}

// Session is one simulation run
type Session struct {
	gorm.Model
	SessionID string    `json:"sessionId" gorm:"size:64;uniqueIndex:idx_session_session_id"`
	StartTime time.Time `json:"startTime" gorm:"type:timestamptz;index:idx_session_start"`
	EndTime   time.Time `json:"endTime" gorm:"type:timestamptz;"`
}

func (*Session) TableName() string {
	return "sessions"
}

// CombatEvent is a mirrored shot, hit or destroyed event. Positions are
// stored as WKB points in EPSG:4326 alongside plain lon/lat columns for
// databases without spatial support.
type CombatEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_combatevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Step      uint      `json:"step" gorm:"index:idx_combatevent_step;"`
	EventType string    `json:"eventType" gorm:"size:16;index:idx_combatevent_type"`

	AttackerID       int     `json:"attackerId" gorm:"index:idx_combatevent_attacker"`
	AttackerName     string  `json:"attackerName" gorm:"size:128"`
	AttackerType     string  `json:"attackerType" gorm:"size:32"`
	AttackerSide     string  `json:"attackerSide" gorm:"size:8"`
	AttackerLon      float64 `json:"attackerLon"`
	AttackerLat      float64 `json:"attackerLat"`
	AttackerPosition []byte  `json:"-"`

	TargetID       int     `json:"targetId" gorm:"index:idx_combatevent_target"`
	TargetName     string  `json:"targetName" gorm:"size:128"`
	TargetType     string  `json:"targetType" gorm:"size:32"`
	TargetSide     string  `json:"targetSide" gorm:"size:8"`
	TargetLon      float64 `json:"targetLon"`
	TargetLat      float64 `json:"targetLat"`
	TargetPosition []byte  `json:"-"`
	TargetHP       float64 `json:"targetHp"`
	TargetMaxHP    float64 `json:"targetMaxHp"`

	Distance  float64 `json:"distance"`
	HitChance float64 `json:"hitChance"`
	Damage    float64 `json:"damage"`
}

func (*CombatEvent) TableName() string {
	return "combat_events"
}

// AttackerPoint decodes the stored attacker position.
func (e *CombatEvent) AttackerPoint() (geom.Point, error) {
	return decodePoint(e.AttackerPosition)
}

// TargetPoint decodes the stored target position.
func (e *CombatEvent) TargetPoint() (geom.Point, error) {
	return decodePoint(e.TargetPosition)
}

// SessionSummary is the final aggregate written when logging shuts down
type SessionSummary struct {
	gorm.Model
	SessionID   uint           `json:"sessionId" gorm:"uniqueIndex:idx_summary_session_id"`
	Session     Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	TotalEvents int            `json:"totalEvents"`
	Shots       int            `json:"shots"`
	Hits        int            `json:"hits"`
	Destroyed   int            `json:"destroyed"`
	Written     int            `json:"written"`
	WriteErrors int            `json:"writeErrors"`
	FlushErrors int            `json:"flushErrors"`
	Rejected    int            `json:"rejected"`
	Abandoned   int            `json:"abandoned"`
	Statistics  datatypes.JSON `json:"statistics"`
}

func (*SessionSummary) TableName() string {
	return "session_summaries"
}

func decodePoint(wkb []byte) (geom.Point, error) {
	if len(wkb) == 0 {
		return geom.NewEmptyPoint(geom.DimXY), nil
	}
	g, err := geom.UnmarshalWKB(wkb)
	if err != nil {
		return geom.Point{}, err
	}
	p, ok := g.AsPoint()
	if !ok {
		return geom.Point{}, fmt.Errorf("expected point geometry, got %s", g.Type())
	}
	return p, nil
}
