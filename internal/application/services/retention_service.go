package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldsync/backend/internal/infrastructure/persistence"
)

// RetentionConfig controls the periodic sweep of stale rows
type RetentionConfig struct {
	// Cron expression; sweeps are disabled when MaxAge is zero
	Schedule string
	// Rows whose update timestamp is older than MaxAge are removed
	MaxAge time.Duration
}

// DefaultRetentionSchedule runs the sweep once a day, off-peak
const DefaultRetentionSchedule = "0 3 * * *"

// RetentionService removes task rows past the configured age, ledger rows
// past the same window, and type rows no task references anymore.
type RetentionService struct {
	cfg     RetentionConfig
	tasks   *persistence.TaskRepository
	types   *persistence.TaskTypeRepository
	changes *persistence.FieldChangeRepository
	cron    *cron.Cron
}

// NewRetentionService creates a new RetentionService
func NewRetentionService(cfg RetentionConfig, tasks *persistence.TaskRepository, types *persistence.TaskTypeRepository, changes *persistence.FieldChangeRepository) *RetentionService {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetentionSchedule
	}
	return &RetentionService{cfg: cfg, tasks: tasks, types: types, changes: changes}
}

// Start schedules the sweep. No-op when retention is disabled.
func (s *RetentionService) Start() error {
	if s.cfg.MaxAge <= 0 {
		log.Println("🧹 Retention sweep disabled (no max age configured)")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("🧹 Retention sweep scheduled (%s, max age %s)", s.cfg.Schedule, s.cfg.MaxAge)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *RetentionService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one retention pass. Each delete is independent; a failure in
// one does not block the others.
func (s *RetentionService) Sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.cfg.MaxAge)

	if n, err := s.tasks.DeleteOlderThan(ctx, cutoff); err != nil {
		log.Printf("⚠️  Retention sweep of tasks failed: %v", err)
	} else if n > 0 {
		log.Printf("🧹 Swept %d stale task rows", n)
	}

	if n, err := s.changes.DeleteOlderThan(ctx, cutoff); err != nil {
		log.Printf("⚠️  Retention sweep of field changes failed: %v", err)
	} else if n > 0 {
		log.Printf("🧹 Swept %d old field change rows", n)
	}

	if n, err := s.types.DeleteUnreferenced(ctx); err != nil {
		log.Printf("⚠️  Retention sweep of task types failed: %v", err)
	} else if n > 0 {
		log.Printf("🧹 Swept %d unreferenced task types", n)
	}
}
