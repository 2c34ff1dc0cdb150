// Package scheduler runs the poller on a cron schedule and exposes its state
// over HTTP.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"newsletterbot/internal/poller"
)

// Poll is one poller invocation.
type Poll interface {
	Run(ctx context.Context) poller.Result
}

type Scheduler struct {
	Spec     string
	Location *time.Location
	Poller   Poll

	schedule cron.Schedule

	mu       sync.Mutex
	last     *poller.Result
	lastAt   time.Time
	nextAt   time.Time
	runCount int
}

// Snapshot is the scheduler state reported on /status.
type Snapshot struct {
	Schedule string
	Runs     int
	Last     *poller.Result
	LastAt   time.Time
	NextAt   time.Time
}

// New parses a standard 5-field cron expression, for example "*/30 * * * *"
// or "0 20-23 * * 0".
func New(spec string, loc *time.Location, p Poll) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid poll_schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{Spec: spec, Location: loc, Poller: p, schedule: sched}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.Location))
}

// Loop blocks until ctx is cancelled. Polls never overlap: the next
// activation is computed only after the previous poll has returned.
func (s *Scheduler) Loop(ctx context.Context) {
	log.Printf("scheduler started (cron: %s)", s.Spec)
	for {
		now := time.Now().In(s.Location)
		next := s.Next(now)
		wait := next.Sub(now)
		s.mu.Lock()
		s.nextAt = next
		s.mu.Unlock()
		log.Printf("scheduler next poll at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("scheduler stopped")
			return
		case <-timer.C:
		}
		s.RunOnce(ctx)
	}
}

// RunOnce polls immediately and records the result.
func (s *Scheduler) RunOnce(ctx context.Context) poller.Result {
	res := s.Poller.Run(ctx)
	s.mu.Lock()
	s.last = &res
	s.lastAt = time.Now().In(s.Location)
	s.runCount++
	s.mu.Unlock()
	log.Printf("scheduler poll done round=%d action=%s", res.Round, res.Action)
	return res
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Schedule: s.Spec, Runs: s.runCount, LastAt: s.lastAt, NextAt: s.nextAt}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	return snap
}
