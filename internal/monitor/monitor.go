package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/combatsim/pkg/core"
)

// Status is a point-in-time view of a run, published by the simulation
// loop after every step.
type Status struct {
	Time      time.Time             `json:"time"`
	SessionID string                `json:"session_id"`
	State     string                `json:"state"`
	Step      int                   `json:"step"`
	Winner    core.Side             `json:"winner,omitempty"`
	Alive     map[core.Side]int     `json:"alive"`
	Potential map[core.Side]float64 `json:"potential"`
	QueueLen  int                   `json:"queue_len"`
	Counts    core.LogCounts        `json:"counts"`
}

// Source returns the latest published status, or nil before the first
// step.
type Source func() *Status

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
	// Collector is updated on every tick when set.
	Collector *Collector
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus renders the current status as indented JSON. It returns
// false when nothing has been published yet.
func (s *Service) GetProgramStatus() ([]byte, *Status, bool) {
	st := s.deps.Source()
	if st == nil {
		return nil, nil, false
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		out = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return out, st, true
}

// Tick publishes the current status once: rewrites the status file and
// refreshes the collector.
func (s *Service) Tick(statusFile *os.File) {
	out, st, ok := s.GetProgramStatus()
	if !ok {
		return
	}
	if s.deps.Collector != nil {
		s.deps.Collector.Update(st)
	}
	if statusFile == nil {
		return
	}
	if err := statusFile.Truncate(0); err != nil {
		s.deps.Logger.Error("Error truncating status file", "error", err)
		return
	}
	if _, err := statusFile.WriteAt(append(out, '\n'), 0); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				// final write so the file reflects the end of the run
				s.Tick(statusFile)
				return
			case <-ticker.C:
				s.Tick(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the final write.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
