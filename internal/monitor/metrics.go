package monitor

import (
	"fmt"
	"net/http"

	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes run status as Prometheus gauges.
type Collector struct {
	gatherer prometheus.Gatherer

	Step          prometheus.Gauge
	UnitsAlive    *prometheus.GaugeVec
	SidePotential *prometheus.GaugeVec
	QueueDepth    prometheus.Gauge
	EventsLogged  prometheus.Gauge
	EventsWritten prometheus.Gauge
	EventsFailed  prometheus.Gauge
}

// NewCollector registers the gauges against reg, defaulting to the global
// registry when nil. Registering twice reuses the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Step, "combatsim_step", "Current simulation step."},
		{&c.QueueDepth, "combatsim_logger_queue_depth", "Events waiting in the async logger queue."},
		{&c.EventsLogged, "combatsim_events_logged", "Events accepted by the logger in this session."},
		{&c.EventsWritten, "combatsim_events_written", "Events durably written by the primary backend."},
		{&c.EventsFailed, "combatsim_events_failed", "Events that failed to write or flush."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name)
		if err != nil {
			return nil, err
		}
	}

	c.UnitsAlive, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "combatsim_units_alive",
		Help: "Units still alive, labeled by side.",
	}, []string{"side"}), "combatsim_units_alive")
	if err != nil {
		return nil, err
	}
	c.SidePotential, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "combatsim_side_potential",
		Help: "Weighted combat potential, labeled by side.",
	}, []string{"side"}), "combatsim_side_potential")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Update sets every gauge from st.
func (c *Collector) Update(st *Status) {
	if c == nil || st == nil {
		return
	}
	c.Step.Set(float64(st.Step))
	c.QueueDepth.Set(float64(st.QueueLen))
	c.EventsLogged.Set(float64(st.Counts.Total))
	c.EventsWritten.Set(float64(st.Counts.Written))
	c.EventsFailed.Set(float64(st.Counts.WriteErrors + st.Counts.FlushErrors))
	for _, side := range core.Sides {
		c.UnitsAlive.WithLabelValues(string(side)).Set(float64(st.Alive[side]))
		c.SidePotential.WithLabelValues(string(side)).Set(st.Potential[side])
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
