package retention

import (
	"fmt"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/patchprove/patchprove/log"
)

// Scheduler runs a Pruner on a cron schedule. Grounded on
// mercator-hq-jupiter's pkg/evidence/retention/scheduler.go.
type Scheduler struct {
	pruner   *Pruner
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	schedule string
}

// NewScheduler creates a Scheduler that runs pruner on the given cron
// expression. An empty schedule makes Start a no-op, matching
// PP_RETENTION_SCHEDULE's default-disabled behavior.
func NewScheduler(pruner *Pruner, schedule string) *Scheduler {
	return &Scheduler{pruner: pruner, cron: cron.New(), schedule: schedule}
}

// ScheduleFromEnv reads PP_RETENTION_SCHEDULE, e.g. "0 3 * * *" for daily at
// 3 AM. Empty by default, so existing behavior (no automatic pruning) is
// unchanged unless an operator opts in.
func ScheduleFromEnv() string {
	return os.Getenv("PP_RETENTION_SCHEDULE")
}

// Start begins scheduled pruning. If no schedule was configured, Start
// returns immediately without error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("retention: invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runPruning); err != nil {
		return fmt.Errorf("retention: schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	return nil
}

func (s *Scheduler) runPruning() {
	deleted, err := s.pruner.Prune()
	if err != nil {
		log.ErrorLog.Printf("retention: scheduled pruning failed: %v", err)
		return
	}
	if deleted > 0 {
		log.InfoLog.Printf("retention: scheduled pruning deleted %d bundle(s)", deleted)
	}
}

// Stop stops the scheduler, waiting for any in-flight pruning run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
	}
}

// IsRunning reports whether the scheduler has an active cron entry.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
