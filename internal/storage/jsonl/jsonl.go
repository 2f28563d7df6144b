// Package jsonl implements the primary durable combat log: one JSON event
// per line, a pointer file naming the newest session and a summary file.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
)

// LatestFileName is the pointer file holding the absolute path of the
// newest session log.
const LatestFileName = "combat_latest"

// Config holds configuration for the JSONL backend.
type Config struct {
	Dir   string
	Fsync bool // sync the file after every flush
}

// Backend appends events to combat_<session>.jsonl.
type Backend struct {
	cfg     Config
	session core.Session
	path    string
	file    *os.File
	w       *bufio.Writer
	mu      sync.Mutex
}

// New creates a new JSONL backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "jsonl" }

// Init creates the log directory and session file, then updates the
// latest pointer. A pointer write failure is not fatal.
func (b *Backend) Init(session core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(b.cfg.Dir, fmt.Sprintf("combat_%s.jsonl", session.ID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open combat log: %w", err)
	}

	b.session = session
	b.path = path
	b.file = f
	b.w = bufio.NewWriter(f)

	if abs, err := filepath.Abs(path); err == nil {
		_ = os.WriteFile(filepath.Join(b.cfg.Dir, LatestFileName), []byte(abs), 0644)
	}
	return nil
}

// RecordEvent buffers one event line.
func (b *Backend) RecordEvent(e *core.CombatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.w == nil {
		return storage.ErrNotInitialized
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := b.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Flush writes buffered lines to the file and syncs when configured.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Backend) flushLocked() error {
	if b.w == nil {
		return storage.ErrNotInitialized
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush combat log: %w", err)
	}
	if b.cfg.Fsync {
		if err := b.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync combat log: %w", err)
		}
	}
	return nil
}

// WriteSummary writes combat_<session>_summary.json next to the log.
func (b *Backend) WriteSummary(s *core.SessionSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path == "" {
		return storage.ErrNotInitialized
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := filepath.Join(b.cfg.Dir, fmt.Sprintf("combat_%s_summary.json", b.session.ID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Close flushes and closes the log file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	flushErr := b.flushLocked()
	closeErr := b.file.Close()
	b.file = nil
	b.w = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ExportedFilePath returns the path of the session log.
func (b *Backend) ExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}
