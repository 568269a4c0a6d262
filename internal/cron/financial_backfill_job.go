package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const defaultBackfillLimit = 200

// financeBackfill is the slice of finance.Service the job drives.
type financeBackfill interface {
	FindUnsyncedDeliveredOrders(ctx context.Context, limit int) ([]uuid.UUID, error)
	BatchSyncOrders(ctx context.Context, orderIDs []uuid.UUID, actorID *uuid.UUID) finance.BatchResult
}

type FinancialBackfillJobParams struct {
	Logger  *logger.Logger
	Finance financeBackfill
	Limit   int
}

// NewFinancialBackfillJob builds the job that syncs delivered orders whose
// financial sync never ran or failed.
func NewFinancialBackfillJob(params FinancialBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finance == nil {
		return nil, fmt.Errorf("finance service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBackfillLimit
	}
	return &financialBackfillJob{logg: params.Logger, finance: params.Finance, limit: limit}, nil
}

type financialBackfillJob struct {
	logg    *logger.Logger
	finance financeBackfill
	limit   int
}

func (j *financialBackfillJob) Name() string { return "financial-backfill" }

func (j *financialBackfillJob) Run(ctx context.Context) error {
	ids, err := j.finance.FindUnsyncedDeliveredOrders(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("find unsynced orders: %w", err)
	}
	if len(ids) == 0 {
		j.logg.Debug(ctx, "no delivered orders awaiting financial sync")
		return nil
	}
	result := j.finance.BatchSyncOrders(ctx, ids, nil)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"synced":     result.Synced,
		"skipped":    result.Skipped,
		"failed":     len(result.Errors),
	})
	j.logg.Info(logCtx, "financial backfill complete")

	var combined error
	for _, failure := range result.Errors {
		combined = multierr.Append(combined, fmt.Errorf("order %s: %s: %s", failure.OrderID, failure.Error.Code, failure.Error.Message))
	}
	return combined
}
