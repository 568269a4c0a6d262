package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
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

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(reg)
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failure, success),
		Lock:     lock,
		Metrics:  cronMetrics,
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail: boom")
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.acquired)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestServiceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(&testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("x")}),
		Lock:     &LocalLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	_ = service.RunOnce(context.Background())

	count, err := testutil.GatherAndCount(reg, "codf_cron_job_success_total", "codf_cron_job_failure_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &LocalLock{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs, "jobs are not started once the context is done")
}

type blockingJob struct{ sawDeadline bool }

func (b *blockingJob) Name() string { return "blocking" }

func (b *blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	_, b.sawDeadline = ctx.Deadline()
	return ctx.Err()
}

type panickingJob struct{}

func (panickingJob) Name() string              { return "panics" }
func (panickingJob) Run(context.Context) error { panic("nil pointer") }

func TestServiceBoundsJobsAndContainsPanics(t *testing.T) {
	blocking := &blockingJob{}
	after := &testJob{name: "after"}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(blocking, panickingJob{}, after),
		Lock:       &LocalLock{},
		JobTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "panics: job panicked: nil pointer")
	assert.True(t, blocking.sawDeadline)
	assert.Equal(t, 1, after.runs)
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &LocalLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
