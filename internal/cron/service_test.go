package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

type fakeLock struct {
	held     map[string]bool
	released []string
	err      error
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (f *fakeLock) Acquire(_ context.Context, job string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	delete(f.held, job)
	f.released = append(f.released, job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string         { return t.name }
func (t *testJob) Every() time.Duration { return time.Hour }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := newFakeLock()
	service := newTestService(t, lock, success, failure)

	service.runCycle(context.Background())
	if success.runs != 1 {
		t.Fatalf("expected success job to run once, ran %d", success.runs)
	}
	if failure.runs != 1 {
		t.Fatalf("expected failure job to run once, ran %d", failure.runs)
	}
	if len(lock.released) != 1 || lock.released[0] != "fail" {
		t.Fatalf("expected only the failed job lease released, got %v", lock.released)
	}
}

func TestServiceLeaseLimitsRunsPerPeriod(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service := newTestService(t, newFakeLock(), success, failure)
	ctx := context.Background()

	service.runCycle(ctx)
	service.runCycle(ctx)
	service.runCycle(ctx)
	if success.runs != 1 {
		t.Fatalf("expected leased job to run once, ran %d", success.runs)
	}
	if failure.runs != 3 {
		t.Fatalf("expected failed job to retry every cycle, ran %d", failure.runs)
	}
}

func TestServiceSkipsJobsWhenLockUnavailable(t *testing.T) {
	job := &testJob{name: "job"}
	lock := newFakeLock()
	lock.err = errors.New("redis down")
	service := newTestService(t, lock, job)

	service.runCycle(context.Background())
	if job.runs != 0 {
		t.Fatalf("expected no runs without a lease, ran %d", job.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, newFakeLock(), job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected canceled cycle to skip jobs, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without lock")
	}
}
