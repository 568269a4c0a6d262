// Package uow runs a declared list of steps as one database transaction.
package uow

import (
	"context"

	"gorm.io/gorm"
)

// StepFunc is one unit of transactional work. tx is the shared transaction.
type StepFunc func(ctx context.Context, tx *gorm.DB) error

// HookFunc runs after a successful commit.
type HookFunc func(ctx context.Context)

// FailureFunc is told about an optional step that was rolled back.
type FailureFunc func(ctx context.Context, step string, err error)

type step struct {
	name     string
	fn       StepFunc
	optional bool
}

// Work is an ordered plan of steps plus the hooks that fire after commit.
// Steps share state through closures over the caller's own structs.
type Work struct {
	name              string
	steps             []step
	afterCommit       []HookFunc
	onOptionalFailure FailureFunc
}

// New starts an empty plan. name labels logs and metrics.
func New(name string) *Work {
	return &Work{name: name}
}

// Name returns the plan label.
func (w *Work) Name() string {
	return w.name
}

// Step appends a required step. Its failure rolls back the whole plan.
func (w *Work) Step(name string, fn StepFunc) *Work {
	w.steps = append(w.steps, step{name: name, fn: fn})
	return w
}

// Optional appends a step that runs inside a savepoint. Its failure undoes
// only its own writes and the plan carries on.
func (w *Work) Optional(name string, fn StepFunc) *Work {
	w.steps = append(w.steps, step{name: name, fn: fn, optional: true})
	return w
}

// AfterCommit registers a hook that only runs once the transaction commits.
func (w *Work) AfterCommit(fn HookFunc) *Work {
	w.afterCommit = append(w.afterCommit, fn)
	return w
}

// OnOptionalFailure registers the reporter for rolled back optional steps.
func (w *Work) OnOptionalFailure(fn FailureFunc) *Work {
	w.onOptionalFailure = fn
	return w
}

// Len reports how many steps are declared.
func (w *Work) Len() int {
	return len(w.steps)
}
