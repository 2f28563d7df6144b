package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnknownCommand is returned by Dispatch when no handler is registered.
var ErrUnknownCommand = errors.New("unknown command")

// ErrEmptyLine is returned by ParseLine for blank input.
var ErrEmptyLine = errors.New("empty command line")

// Event represents an operator command such as ":RUN: 50".
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// ParseLine splits a console line into a command and its arguments. The
// command is upper-cased and wrapped in colons when the operator omits them,
// so "run 10" and ":RUN: 10" are equivalent.
func ParseLine(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, ErrEmptyLine
	}
	cmd := strings.ToUpper(strings.Trim(fields[0], ":"))
	if cmd == "" {
		return Event{}, ErrEmptyLine
	}
	return Event{
		Command:   ":" + cmd + ":",
		Args:      fields[1:],
		Timestamp: time.Now(),
	}, nil
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Handlers run on the
// calling goroutine.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	dispatched metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	var err error
	d.dispatched, err = meter().Int64Counter(
		"dispatcher.commands",
		metric.WithDescription("Operator commands dispatched, by command and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		d.count(e.Command, "unknown")
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	result, err := h(e)
	if err != nil {
		d.count(e.Command, "error")
	} else {
		d.count(e.Command, "ok")
	}
	return result, err
}

// Commands returns the registered command names in sorted order.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) count(command, result string) {
	d.dispatched.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("result", result),
	))
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
