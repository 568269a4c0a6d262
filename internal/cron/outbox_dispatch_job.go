package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

type outboxDispatcher interface {
	DispatchOnce(ctx context.Context) (int, error)
}

// NewOutboxDispatchJob drains one outbox batch per cycle. Deployments that run
// the outbox publisher do not need it.
func NewOutboxDispatchJob(logg *logger.Logger, dispatcher outboxDispatcher) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("outbox dispatcher required")
	}
	return &outboxDispatchJob{logg: logg, dispatcher: dispatcher}, nil
}

type outboxDispatchJob struct {
	logg       *logger.Logger
	dispatcher outboxDispatcher
}

func (j *outboxDispatchJob) Name() string { return "outbox-dispatch" }

func (j *outboxDispatchJob) Run(ctx context.Context) error {
	delivered, err := j.dispatcher.DispatchOnce(ctx)
	if delivered > 0 {
		j.logg.Info(j.logg.WithField(ctx, "delivered", delivered), "outbox batch dispatched")
	}
	if err != nil {
		return fmt.Errorf("outbox dispatch: %w", err)
	}
	return nil
}
