package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/combatsim/internal/combatlog"
	"github.com/OCAP2/combatsim/internal/influx"
	"github.com/OCAP2/combatsim/internal/logging"
	"github.com/OCAP2/combatsim/internal/monitor"
	"github.com/OCAP2/combatsim/internal/sim"
	"github.com/OCAP2/combatsim/pkg/core"
)

// errMaxSteps is returned once the configured step cap is reached.
var errMaxSteps = errors.New("max steps reached")

// app drives one simulation run. All methods are called from the main
// goroutine; other goroutines only read the published snapshots.
type app struct {
	sim    *sim.Simulation
	events *combatlog.Logger
	// influx is nil unless a server or backup file is available.
	influx   *influx.Manager
	runCtx   *logging.RunContext
	log      *slog.Logger
	out      io.Writer
	maxSteps int
	interval time.Duration

	status atomic.Pointer[monitor.Status]
	stats  atomic.Pointer[core.Statistics]
	quit   bool
}

// step advances the battle once and publishes the result.
func (a *app) step() error {
	if a.maxSteps > 0 && a.sim.StepCount() >= a.maxSteps {
		return errMaxSteps
	}
	if err := a.sim.Step(); err != nil {
		return err
	}
	a.publish()
	return nil
}

// run steps until the battle ends, n steps have run (n <= 0 means no
// limit besides the cap), or ctx is cancelled. It returns the number of
// steps taken.
func (a *app) run(ctx context.Context, n int) (int, error) {
	taken := 0
	for a.sim.IsRunning() && (n <= 0 || taken < n) {
		if err := ctx.Err(); err != nil {
			return taken, err
		}
		if err := a.step(); err != nil {
			if errors.Is(err, errMaxSteps) {
				a.log.Warn("Step cap reached", "max_steps", a.maxSteps)
			}
			return taken, err
		}
		taken++

		if a.interval > 0 && a.sim.IsRunning() {
			select {
			case <-ctx.Done():
				return taken, ctx.Err()
			case <-time.After(a.interval):
			}
		}
	}
	return taken, nil
}

// publish refreshes the snapshots read by the monitor and the combat log
// summary, and forwards per-step metrics to InfluxDB.
func (a *app) publish() {
	stats := a.sim.Statistics()
	a.stats.Store(&stats)

	st := &monitor.Status{
		Time:      time.Now(),
		State:     a.sim.State().String(),
		Step:      stats.Step,
		Winner:    stats.Winner,
		Alive:     map[core.Side]int{},
		Potential: map[core.Side]float64{},
	}
	for side, s := range stats.Sides {
		st.Alive[side] = s.Alive
		st.Potential[side] = s.Potential
	}
	if a.events != nil {
		st.SessionID = a.events.SessionID()
		st.QueueLen = a.events.QueueLen()
		st.Counts = a.events.Stats()
	}
	a.status.Store(st)

	if a.runCtx != nil {
		a.runCtx.SetStep(stats.Step)
	}
	if a.influx != nil {
		if err := a.influx.RecordStep(st.SessionID, stats, st.Time); err != nil {
			a.log.Warn("Failed to record step metrics", "error", err)
		}
	}
}

// latestStatistics is handed to the combat logger for the session summary.
func (a *app) latestStatistics() *core.Statistics {
	return a.stats.Load()
}

// latestStatus feeds the status monitor.
func (a *app) latestStatus() *monitor.Status {
	return a.status.Load()
}

// printStatistics writes the final battle report.
func (a *app) printStatistics() {
	stats := a.sim.Statistics()
	winner := string(stats.Winner)
	if winner == "" {
		winner = "none"
	}
	fmt.Fprintf(a.out, "Battle finished after %d steps, winner: %s\n", stats.Step, winner)
	for _, side := range core.Sides {
		s := stats.Sides[side]
		fmt.Fprintf(a.out, "  side %s: %d/%d alive, %d kills, accuracy %.1f%%, potential %.1f/%.1f\n",
			side, s.Alive, s.TotalUnits, s.TotalKills, s.AccuracyPercent, s.Potential, s.InitialPotential)
	}
	if a.events != nil {
		c := a.events.Stats()
		fmt.Fprintf(a.out, "  events: %d logged, %d written, %d failed\n",
			c.Total, c.Written, c.WriteErrors+c.FlushErrors)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
