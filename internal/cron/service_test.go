package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/repairdesk-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	return !f.held, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	return nil
}

func (f *fakeLock) Holder(context.Context) (string, error) {
	if f.held {
		return "worker.2", nil
	}
	return "", nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs map[*testJob]time.Duration) (*Service, *time.Time) {
	t.Helper()
	schedule := NewSchedule()
	for job, every := range jobs {
		schedule.Add(job, every)
	}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	clock := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return clock }
	return service, &clock
}

func TestRunDueKeepsGoingAfterAJobFails(t *testing.T) {
	reminders := &testJob{name: "quote-reminder", err: errors.New("db down")}
	retention := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	service, _ := newTestService(t, lock, map[*testJob]time.Duration{reminders: time.Hour, retention: 24 * time.Hour})

	if err := service.runDue(context.Background()); err != nil {
		t.Fatalf("run due: %v", err)
	}
	if reminders.runs != 1 || retention.runs != 1 {
		t.Fatalf("expected both jobs to run once, got reminders=%d retention=%d", reminders.runs, retention.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("lock must be released, got %d releases", lock.releases)
	}
}

func TestRunDueHonoursCadenceAcrossTicks(t *testing.T) {
	reminders := &testJob{name: "quote-reminder"}
	retention := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	service, clock := newTestService(t, lock, map[*testJob]time.Duration{reminders: time.Hour, retention: 24 * time.Hour})
	ctx := context.Background()

	for i := 0; i < 13; i++ {
		if err := service.runDue(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		*clock = clock.Add(5 * time.Minute)
	}
	if reminders.runs != 2 || retention.runs != 1 {
		t.Fatalf("after an hour of ticks expected reminders=2 retention=1, got %d and %d", reminders.runs, retention.runs)
	}
	if lock.acquires != 2 {
		t.Fatalf("the lock should only be taken on ticks with due work, got %d", lock.acquires)
	}
}

func TestRunDueSkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	job := &testJob{name: "quote-reminder"}
	service, _ := newTestService(t, &fakeLock{held: true}, map[*testJob]time.Duration{job: time.Hour})

	if err := service.runDue(context.Background()); err != nil {
		t.Fatalf("run due: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock")
	}
	if len(service.schedule.Due(service.now())) != 1 {
		t.Fatalf("a skipped job stays due for the next tick")
	}
}

func TestRunDueReportsLockErrors(t *testing.T) {
	job := &testJob{name: "quote-reminder"}
	service, _ := newTestService(t, &fakeLock{err: errors.New("redis down")}, map[*testJob]time.Duration{job: time.Hour})

	if err := service.runDue(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("job must not run when the lock cannot be checked")
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	schedule := NewSchedule()
	schedule.Add(&testJob{name: "quote-reminder"}, time.Hour)

	if _, err := NewService(ServiceParams{Schedule: schedule, Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Schedule: schedule}); err == nil {
		t.Fatalf("expected error without lock")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Schedule: NewSchedule(), Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected error for an empty schedule")
	}
	service, err := NewService(ServiceParams{Logger: testLogger(), Schedule: schedule, Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.tick != defaultTick {
		t.Fatalf("expected default tick, got %s", service.tick)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "quote-reminder"}
	service, _ := newTestService(t, &fakeLock{}, map[*testJob]time.Duration{job: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("the first tick fires before the loop waits, got %d runs", job.runs)
	}
}
