package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/OCAP2/combatsim/internal/dispatcher"
	"github.com/OCAP2/combatsim/pkg/core"
)

// Operator commands accepted on stdin in interactive mode.
const (
	cmdStep       = ":STEP:"
	cmdRun        = ":RUN:"
	cmdState      = ":STATE:"
	cmdStats      = ":STATS:"
	cmdCasualties = ":CASUALTIES:"
	cmdRules      = ":RULES:"
	cmdStatus     = ":STATUS:"
	cmdShutdown   = ":SHUTDOWN:"
	cmdHelp       = ":HELP:"
)

// registerCommands wires the operator commands to the app. Every handler
// runs synchronously on the caller's goroutine since the simulation is not
// safe for concurrent use.
func registerCommands(ctx context.Context, d *dispatcher.Dispatcher, a *app) {
	d.Register(cmdStep, func(e dispatcher.Event) (any, error) {
		if err := a.step(); err != nil {
			return nil, err
		}
		return a.statusLine(), nil
	}, dispatcher.Logged())

	d.Register(cmdRun, func(e dispatcher.Event) (any, error) {
		n := 0
		if len(e.Args) > 0 {
			v, err := strconv.Atoi(e.Args[0])
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid step count %q", e.Args[0])
			}
			n = v
		}
		taken, err := a.run(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("stopped after %d steps: %w", taken, err)
		}
		return fmt.Sprintf("ran %d steps; %s", taken, a.statusLine()), nil
	}, dispatcher.Logged())

	d.Register(cmdState, func(e dispatcher.Event) (any, error) {
		return a.jsonReply(a.sim.ExportState())
	})

	d.Register(cmdStats, func(e dispatcher.Event) (any, error) {
		return a.jsonReply(a.sim.Statistics())
	})

	d.Register(cmdCasualties, func(e dispatcher.Event) (any, error) {
		return a.jsonReply(a.sim.CasualtyStatistics())
	})

	d.Register(cmdRules, func(e dispatcher.Event) (any, error) {
		return a.rulesTable(), nil
	})

	d.Register(cmdStatus, func(e dispatcher.Event) (any, error) {
		return a.statusLine(), nil
	})

	d.Register(cmdShutdown, func(e dispatcher.Event) (any, error) {
		a.quit = true
		return "shutting down", nil
	}, dispatcher.Logged())

	d.Register(cmdHelp, func(e dispatcher.Event) (any, error) {
		return fmt.Sprintf("commands: %v", d.Commands()), nil
	})
}

func (a *app) statusLine() string {
	stats := a.sim.Statistics()
	line := fmt.Sprintf("step %d, %s, alive A=%d B=%d",
		stats.Step, a.sim.State(),
		stats.Sides[core.SideA].Alive, stats.Sides[core.SideB].Alive)
	if !stats.Running && stats.Winner != "" {
		line += ", winner " + string(stats.Winner)
	}
	if a.events != nil {
		line += fmt.Sprintf(", queue %d", a.events.QueueLen())
	}
	return line
}

func (a *app) jsonReply(v any) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return "", fmt.Errorf("failed to encode reply: %w", err)
	}
	return buf.String(), nil
}

func (a *app) rulesTable() string {
	table := a.sim.Rules()
	if table == nil {
		return "no rules loaded"
	}
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTACKER\tTARGET\tHIT\tDMG\tRANGE KM\tPRIO")
	for _, r := range table.Rules() {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.1f-%.1f\t%d\n",
			r.Attacker, r.Target, r.BaseHitProbability, r.DamageMultiplier,
			r.MinRange, r.MaxRange, r.Priority)
	}
	tw.Flush()
	return buf.String()
}
