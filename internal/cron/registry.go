package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work in the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Schedule holds jobs with their cadence. A job that has never run is due
// immediately so a fresh worker catches up after a deploy.
type Schedule struct {
	entries []*entry
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add registers job to run at most once per every. A non-positive every
// makes the job run on each tick.
func (s *Schedule) Add(job Job, every time.Duration) {
	if job == nil {
		return
	}
	s.entries = append(s.entries, &entry{job: job, every: every})
}

// Due lists jobs whose cadence has elapsed at now, in registration order.
func (s *Schedule) Due(now time.Time) []Job {
	var due []Job
	for _, e := range s.entries {
		if e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.every {
			due = append(due, e.job)
		}
	}
	return due
}

// MarkRan records an attempt. Failed runs are marked too; the next attempt
// waits a full cadence rather than hammering a broken dependency.
func (s *Schedule) MarkRan(name string, at time.Time) {
	for _, e := range s.entries {
		if e.job.Name() == name {
			e.lastRun = at
		}
	}
}

// Len reports how many jobs are registered.
func (s *Schedule) Len() int {
	return len(s.entries)
}
