// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/OCAP2/combatsim/pkg/core"
)

// ErrNotInitialized is returned when a backend is used before Init.
var ErrNotInitialized = errors.New("storage backend not initialized")

// Backend is the interface all storage implementations must satisfy.
// Calls are made from a single writer goroutine.
type Backend interface {
	Name() string

	// Lifecycle
	Init(session core.Session) error
	Close() error

	// Event recording
	RecordEvent(e *core.CombatEvent) error
	// Flush makes previously recorded events durable.
	Flush() error

	// WriteSummary persists the end-of-session summary.
	WriteSummary(s *core.SessionSummary) error
}

// Exporter is an optional interface for backends that produce a single
// output file at the end of a session.
type Exporter interface {
	ExportedFilePath() string
}
