package sim

import (
	"context"

	"github.com/OCAP2/combatsim/pkg/core"
)

// EventSink receives combat events as they happen. Implementations must not
// block the caller on I/O.
type EventSink interface {
	LogEvent(e core.CombatEvent)
}

// Shutdowner is implemented by sinks that hold resources which must be
// released at the end of a session.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(e core.CombatEvent)

// LogEvent calls f(e).
func (f SinkFunc) LogEvent(e core.CombatEvent) { f(e) }

// Discard drops every event.
var Discard EventSink = SinkFunc(func(core.CombatEvent) {})
