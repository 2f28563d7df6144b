// pkg/core/session.go
package core

import "time"

// Session identifies one simulation run in the durable log.
type Session struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// LogCounts are the aggregate counters kept by the event logger.
type LogCounts struct {
	Total       int `json:"total_events"`
	Shots       int `json:"shots"`
	Hits        int `json:"hits"`
	Destroyed   int `json:"destroyed"`
	Written     int `json:"written"`
	WriteErrors int `json:"write_errors"`
	FlushErrors int `json:"flush_errors"`
	Rejected    int `json:"rejected"`
	Abandoned   int `json:"abandoned"`
}

// SessionSummary is written once per session when logging shuts down.
type SessionSummary struct {
	SessionID string      `json:"session_id"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"timestamp"`
	Counts    LogCounts   `json:"statistics"`
	Battle    *Statistics `json:"battle,omitempty"`
}
