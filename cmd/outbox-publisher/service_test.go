package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeDispatcher struct {
	delivered []int
	errs      []error
	calls     int
}

func (f *fakeDispatcher) DispatchOnce(context.Context) (int, error) {
	i := f.calls
	f.calls++
	var n int
	var err error
	if i < len(f.delivered) {
		n = f.delivered[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return n, err
}

type fakeLock struct {
	deny     bool
	acquired int
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.deny {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.released++
	return nil
}

func newTestService(t *testing.T, d dispatcher, lock batchLock, db dbClient) *Service {
	t.Helper()
	cfg := &config.Config{Outbox: config.OutboxConfig{BatchSize: 2, PollInterval: 10 * time.Millisecond}}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.Nop(),
		DB:         db,
		Dispatcher: d,
		Lock:       lock,
	})
	require.NoError(t, err)
	return svc
}

func TestProcessBatchReportsFullBatches(t *testing.T) {
	d := &fakeDispatcher{delivered: []int{2, 1}}
	lock := &fakeLock{}
	svc := newTestService(t, d, lock, fakeDB{})

	more, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, more)

	more, err = svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 2, lock.acquired)
	assert.Equal(t, 2, lock.released)
}

func TestProcessBatchSkipsWhenLockHeldElsewhere(t *testing.T) {
	d := &fakeDispatcher{}
	svc := newTestService(t, d, &fakeLock{deny: true}, fakeDB{})

	more, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	assert.Zero(t, d.calls)
}

func TestProcessBatchReleasesLockOnError(t *testing.T) {
	d := &fakeDispatcher{errs: []error{errors.New("sink offline")}}
	lock := &fakeLock{}
	svc := newTestService(t, d, lock, fakeDB{})

	_, err := svc.processBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, lock.released)
}

func TestRunFailsWhenDatabaseUnavailable(t *testing.T) {
	svc := newTestService(t, &fakeDispatcher{}, &fakeLock{}, fakeDB{err: errors.New("refused")})
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	d := &fakeDispatcher{}
	svc := newTestService(t, d, &fakeLock{}, fakeDB{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, d.calls)
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, time.Second, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(20*time.Second, time.Second, maxBackoff))
	assert.Equal(t, 2*time.Second, nextBackoff(0, time.Second, maxBackoff))
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}, Logger: logger.Nop(), DB: fakeDB{}})
	assert.Error(t, err)
}
