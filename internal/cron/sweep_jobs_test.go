package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/settlements"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
)

type fakePenaltySweeper struct {
	calls  int
	result returns.SweepResult
	err    error
}

func (f *fakePenaltySweeper) ApplyPenalties(context.Context) (returns.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSettlementSweeper struct {
	calls  int
	result settlements.SweepResult
	err    error
}

func (f *fakeSettlementSweeper) Sweep(context.Context) (settlements.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeArchiver struct {
	calls int
	err   error
}

func (f *fakeArchiver) ArchiveTerminal(context.Context) (int64, error) {
	f.calls++
	return 4, f.err
}

func TestSweepJobsCadence(t *testing.T) {
	logg := logger.Nop()
	penalty, _ := NewPenaltySweepJob(logg, &fakePenaltySweeper{}, nil)
	settlement, _ := NewSettlementSweepJob(logg, &fakeSettlementSweeper{}, nil)
	archival, _ := NewOrderArchivalJob(logg, &fakeArchiver{})

	cases := map[Job]time.Duration{
		penalty:    time.Hour,
		settlement: 7 * 24 * time.Hour,
		archival:   24 * time.Hour,
	}
	for job, every := range cases {
		if job.Every() != every {
			t.Fatalf("%s: expected every %s, got %s", job.Name(), every, job.Every())
		}
	}
}

func TestSweepJobsFailWhenNothingWasLoaded(t *testing.T) {
	logg := logger.Nop()
	boom := errors.New("select failed")
	ctx := context.Background()

	penalty, _ := NewPenaltySweepJob(logg, &fakePenaltySweeper{err: boom}, nil)
	if err := penalty.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("penalty: expected boom, got %v", err)
	}

	settlement, _ := NewSettlementSweepJob(logg, &fakeSettlementSweeper{err: boom}, nil)
	if err := settlement.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("settlement: expected boom, got %v", err)
	}

	archival, _ := NewOrderArchivalJob(logg, &fakeArchiver{err: boom})
	if err := archival.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("archival: expected boom, got %v", err)
	}
}

func TestSweepJobsCountFailedUnitsWithoutFailing(t *testing.T) {
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(reg)
	unitErrs := multierr.Combine(errors.New("seller a: deadlock"), errors.New("seller b: timeout"))

	settlement, err := NewSettlementSweepJob(logger.Nop(), &fakeSettlementSweeper{
		result: settlements.SweepResult{Sellers: 3, Settlements: 1},
		err:    unitErrs,
	}, cronMetrics)
	require.NoError(t, err)
	require.NoError(t, settlement.Run(context.Background()))

	penalty, err := NewPenaltySweepJob(logger.Nop(), &fakePenaltySweeper{
		result: returns.SweepResult{Candidates: 2},
		err:    errors.New("return x: locked"),
	}, cronMetrics)
	require.NoError(t, err)
	require.NoError(t, penalty.Run(context.Background()))

	assert.Equal(t, 2.0, unitFailures(t, reg, "settlement-sweep"))
	assert.Equal(t, 1.0, unitFailures(t, reg, "return-penalty-sweep"))
}

func TestPartiallyFailedSweepWaitsForNextPeriod(t *testing.T) {
	sweeper := &fakeSettlementSweeper{
		result: settlements.SweepResult{Sellers: 3, Settlements: 2, Items: 5},
		err:    errors.New("seller c: serialization failure"),
	}
	job, err := NewSettlementSweepJob(logger.Nop(), sweeper, nil)
	require.NoError(t, err)
	lock := newFakeLock()
	service := newTestService(t, lock, job)
	ctx := context.Background()

	for tick := 0; tick < 3; tick++ {
		service.runCycle(ctx)
	}
	assert.Equal(t, 1, sweeper.calls, "weekly sweep must not rerun on the next tick")
	assert.Empty(t, lock.released)
	assert.True(t, lock.held["settlement-sweep"])
}

func TestUnloadableSweepRetriesOnNextTick(t *testing.T) {
	sweeper := &fakeSettlementSweeper{err: errors.New("db unavailable")}
	job, err := NewSettlementSweepJob(logger.Nop(), sweeper, nil)
	require.NoError(t, err)
	lock := newFakeLock()
	service := newTestService(t, lock, job)
	ctx := context.Background()

	service.runCycle(ctx)
	service.runCycle(ctx)
	assert.Equal(t, 2, sweeper.calls)
	assert.Equal(t, []string{"settlement-sweep", "settlement-sweep"}, lock.released)
}

func TestSweepJobsRequireDependencies(t *testing.T) {
	if _, err := NewPenaltySweepJob(logger.Nop(), nil, nil); err == nil {
		t.Fatal("expected error without sweeper")
	}
	if _, err := NewSettlementSweepJob(nil, &fakeSettlementSweeper{}, nil); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewOrderArchivalJob(logger.Nop(), nil); err == nil {
		t.Fatal("expected error without archiver")
	}
}

func unitFailures(t *testing.T, reg *prometheus.Registry, job string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "marketplace_job_unit_failures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no unit failure counter for %s", job)
	return 0
}
