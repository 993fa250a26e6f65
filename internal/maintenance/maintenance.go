// Package maintenance runs periodic housekeeping jobs on a cron schedule.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "github.com/ParachuteTeam/Parachute/internal/log"
)

// Purger deletes expired events older than retention.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler runs the retention purge on a cron spec.
type Scheduler struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

// New validates spec (standard five-field cron syntax) and prepares a
// scheduler. A non-positive retention disables purging: Start then does
// nothing.
func New(spec string, retention time.Duration, purger Purger) (*Scheduler, error) {
	if purger == nil {
		return nil, errors.New("maintenance: purger is required")
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		purger:    purger,
		retention: retention,
		timeout:   time.Minute,
	}
	if retention <= 0 {
		return s, nil
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("maintenance: purge schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	if s.retention <= 0 {
		appLog.Info("event purge disabled")
		return
	}
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("event purge scheduled", "next", e.Next, "retention", s.retention.String())
	}
}

// Stop halts the schedule and waits for a running job, or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunNow runs one purge synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, errors.New("maintenance: purge already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	n, err := s.purger.Purge(ctx, s.retention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		appLog.Info("expired events purged", "count", n)
	}
	return n, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		appLog.Error("event purge failed", err)
	}
}
