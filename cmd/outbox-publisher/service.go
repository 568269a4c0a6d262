package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const (
	defaultPollInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(ctx context.Context) error
}

type dispatcher interface {
	DispatchOnce(ctx context.Context) (int, error)
}

// batchLock keeps concurrent publishers from delivering the same rows.
type batchLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Dispatcher dispatcher
	Lock       batchLock
}

type Service struct {
	logg         *logger.Logger
	db           dbClient
	dispatcher   dispatcher
	lock         batchLock
	batchSize    int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("outbox dispatcher is required")
	}
	if params.Lock == nil {
		return nil, errors.New("publisher lock is required")
	}

	poll := params.Config.Outbox.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		dispatcher:   params.Dispatcher,
		lock:         params.Lock,
		batchSize:    params.Config.Outbox.BatchSize,
		pollInterval: poll,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	return pingDependency(ctx, s.logg, "database", s.db.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by the next one; errors back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		more, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if more {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch reports whether another batch is likely waiting.
func (s *Service) processBatch(ctx context.Context) (more bool, err error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire publisher lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if releaseErr := s.lock.Release(ctx); releaseErr != nil {
			s.logg.Error(ctx, "failed to release publisher lock", releaseErr)
		}
	}()

	delivered, err := s.dispatcher.DispatchOnce(ctx)
	if delivered > 0 {
		s.logg.Info(s.logg.WithField(ctx, "delivered", delivered), "outbox batch delivered")
	}
	if err != nil {
		return false, err
	}
	return s.batchSize > 0 && delivered >= s.batchSize, nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
