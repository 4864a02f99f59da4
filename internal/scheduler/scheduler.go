// Package scheduler places follow-up calls at the appointment times recorded
// in the call schedule.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dialer places an outbound call and returns the new call SID.
type Dialer interface {
	Place(ctx context.Context, number string) (string, error)
}

// ScheduleSource lists upcoming appointment times keyed by the call SID that
// produced them.
type ScheduleSource interface {
	Schedule() (map[string]string, error)
}

// Directory resolves the phone number to dial for a scheduled entry.
type Directory func(callSID string) string

// Scheduler scans the schedule on an interval and dials entries whose time
// has arrived. Each entry is dialed at most once per process lifetime.
type Scheduler struct {
	source   ScheduleSource
	dialer   Dialer
	number   Directory
	interval time.Duration

	mu     sync.Mutex
	placed map[string]struct{}
}

// New wires a scheduler. A zero interval defaults to one minute.
func New(source ScheduleSource, dialer Dialer, number Directory, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		source:   source,
		dialer:   dialer,
		number:   number,
		interval: interval,
		placed:   make(map[string]struct{}),
	}
}

// Run scans until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	schedule, err := s.source.Schedule()
	if err != nil {
		log.Printf("scheduler: failed to read schedule: %v", err)
		return
	}
	now := time.Now()
	for callSID, ts := range schedule {
		due, err := parseAppointment(ts)
		if err != nil {
			log.Printf("scheduler: skipping %s, bad timestamp %q: %v", callSID, ts, err)
			continue
		}
		if due.After(now) {
			continue
		}
		key := callSID + "|" + ts
		s.mu.Lock()
		_, done := s.placed[key]
		if !done {
			s.placed[key] = struct{}{}
		}
		s.mu.Unlock()
		if done {
			continue
		}

		number := s.number(callSID)
		if number == "" {
			log.Printf("scheduler: no number for scheduled call %s", callSID)
			continue
		}
		jobID := uuid.NewString()
		log.Printf("scheduler: job %s dialing %s (scheduled %s)", jobID, number, ts)
		if _, err := s.dialer.Place(ctx, number); err != nil {
			log.Printf("scheduler: job %s failed to place call: %v", jobID, err)
		}
	}
}

// parseAppointment accepts ISO 8601 timestamps with or without a zone
// offset; zoneless times are taken as local.
func parseAppointment(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", ts, time.Local)
}
