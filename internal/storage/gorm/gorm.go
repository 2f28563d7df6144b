// Package gormstorage implements the storage.Backend interface on top of a
// database.Manager. Events are queued on RecordEvent and written in batches
// on Flush. When the manager runs on SQLite the database is periodically
// dumped to disk via VACUUM INTO.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/combatsim/internal/database"
	"github.com/OCAP2/combatsim/internal/model"
	"github.com/OCAP2/combatsim/internal/queue"
	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"

	"gorm.io/gorm/clause"
)

// Config holds configuration for the GORM storage backend.
type Config struct {
	BatchSize    int
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps, SQLite only
}

// Backend writes events and summaries through GORM.
type Backend struct {
	db      *database.Manager
	cfg     Config
	log     *slog.Logger
	pending *queue.Queue[model.CombatEvent]

	sessionID uint
	stopChan  chan struct{}
	dumpDone  chan struct{}
	mu        sync.Mutex
}

// New creates a new GORM storage backend. The manager must already be
// connected.
func New(db *database.Manager, cfg Config, log *slog.Logger) *Backend {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		db:      db,
		cfg:     cfg,
		log:     log,
		pending: queue.New[model.CombatEvent](),
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	if b.db != nil && b.db.DB != nil {
		return "gorm:" + b.db.DB.Name()
	}
	return "gorm"
}

// Init migrates the schema, creates the session row and starts the dump
// goroutine when dumping is configured.
func (b *Backend) Init(session core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil || b.db.DB == nil || !b.db.IsValid {
		return storage.ErrNotInitialized
	}
	if err := b.db.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	row := model.Session{SessionID: session.ID, StartTime: session.StartedAt}
	if err := b.db.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID = row.ID

	if b.db.ShouldSaveLocal && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.dumpDone = make(chan struct{})
		go b.dumpLoop(b.stopChan, b.dumpDone)
	}
	return nil
}

// RecordEvent converts and queues an event.
func (b *Backend) RecordEvent(e *core.CombatEvent) error {
	b.mu.Lock()
	id := b.sessionID
	b.mu.Unlock()

	if id == 0 {
		return storage.ErrNotInitialized
	}
	b.pending.Push(model.CombatEventFromCore(id, *e))
	return nil
}

// Flush writes every queued event in batches.
func (b *Backend) Flush() error {
	items := b.pending.GetAndEmpty()
	if len(items) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionID == 0 {
		return storage.ErrNotInitialized
	}

	err := b.db.DB.Omit(clause.Associations).CreateInBatches(items, b.cfg.BatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to insert %d combat events: %w", len(items), err)
	}
	return nil
}

// WriteSummary stores the summary row and stamps the session end time.
func (b *Backend) WriteSummary(s *core.SessionSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionID == 0 {
		return storage.ErrNotInitialized
	}
	row, err := model.SessionSummaryFromCore(b.sessionID, *s)
	if err != nil {
		return err
	}
	if err := b.db.DB.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session summary: %w", err)
	}
	err = b.db.DB.Model(&model.Session{}).
		Where("id = ?", b.sessionID).
		Update("end_time", s.EndedAt).Error
	if err != nil {
		return fmt.Errorf("failed to update session end time: %w", err)
	}
	return nil
}

// Close flushes remaining events, stops the dump goroutine, writes a final
// dump and closes the connection.
func (b *Backend) Close() error {
	var errs []error
	if err := b.Flush(); err != nil {
		errs = append(errs, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopChan != nil {
		close(b.stopChan)
		<-b.dumpDone
		b.stopChan = nil
	}
	if b.db != nil && b.db.ShouldSaveLocal && b.cfg.DumpPath != "" && b.sessionID != 0 {
		if err := b.db.DumpMemoryToDisk(b.cfg.DumpPath); err != nil {
			errs = append(errs, err)
		}
	}
	b.sessionID = 0
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportedFilePath returns the dump path when dumping is configured.
func (b *Backend) ExportedFilePath() string {
	if b.db == nil || !b.db.ShouldSaveLocal {
		return ""
	}
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.db.DumpMemoryToDisk(b.cfg.DumpPath); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
