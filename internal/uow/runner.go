package uow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
)

const (
	defaultMaxConcurrent = 16
	defaultMaxWait       = 5 * time.Second
	defaultTimeout       = 10 * time.Second
)

// Options bound how many units of work run at once and for how long.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration
	Logger        *logger.Logger
	Metrics       *metrics.FulfillmentMetrics
}

// Runner executes Work plans against one database.
type Runner struct {
	db      *gorm.DB
	slots   *semaphore.Weighted
	maxWait time.Duration
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.FulfillmentMetrics
}

func NewRunner(db *gorm.DB, opts Options) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Runner{
		db:      db,
		slots:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		maxWait: opts.MaxWait,
		timeout: opts.Timeout,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// DB exposes the base handle for reads outside any transaction.
func (r *Runner) DB() *gorm.DB {
	return r.db
}

// Run executes every step of w inside one transaction, in declaration order.
// It fails with TIMEOUT when no slot frees up within MaxWait or when the
// transaction outlives Timeout.
func (r *Runner) Run(ctx context.Context, w *Work) error {
	if w == nil {
		return fmt.Errorf("work required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.acquire(ctx, w.name); err != nil {
		return err
	}
	defer r.slots.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.execute(runCtx, w); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			r.metrics.ObserveTimeout("execute")
			return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("%s exceeded its time budget", w.name))
		}
		return err
	}

	for _, hook := range w.afterCommit {
		r.runHook(ctx, w.name, hook)
	}
	return nil
}

// WithTx runs fn as a single-step plan.
func (r *Runner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.Run(ctx, New("tx").Step("fn", func(_ context.Context, tx *gorm.DB) error {
		return fn(tx)
	}))
}

func (r *Runner) acquire(ctx context.Context, name string) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()
	if err := r.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.metrics.ObserveTimeout("wait")
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("%s timed out waiting for a transaction slot", name))
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, w *Work) (err error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	for i, s := range w.steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s before step %s: %w", w.name, s.name, ctxErr)
		}
		if !s.optional {
			if stepErr := s.fn(ctx, tx); stepErr != nil {
				_ = tx.Rollback()
				return stepErr
			}
			continue
		}
		if stepErr := r.runOptional(ctx, tx, i, s); stepErr != nil {
			if w.onOptionalFailure != nil {
				w.onOptionalFailure(ctx, s.name, stepErr)
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s after step %s: %w", w.name, s.name, ctxErr)
		}
	}

	return tx.Commit().Error
}

// runOptional isolates s in a savepoint. A returned error means the savepoint
// was rolled back and the outer transaction is still usable.
func (r *Runner) runOptional(ctx context.Context, tx *gorm.DB, index int, s step) error {
	name := savepointName(index, s.name)
	if err := tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	stepErr := s.fn(ctx, tx)
	if stepErr == nil {
		return nil
	}
	if err := tx.RollbackTo(name).Error; err != nil {
		return errors.Join(stepErr, fmt.Errorf("rollback to %s: %w", name, err))
	}
	return stepErr
}

func (r *Runner) runHook(ctx context.Context, name string, hook HookFunc) {
	defer func() {
		if rec := recover(); rec != nil && r.logg != nil {
			r.logg.Error(r.logg.WithField(ctx, "work", name), "after-commit hook panicked", fmt.Errorf("%v", rec))
		}
	}()
	hook(ctx)
}

func savepointName(index int, step string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sp_%d_", index)
	for _, r := range strings.ToLower(step) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
