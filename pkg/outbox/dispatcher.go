package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const (
	defaultDispatchBatch = 50
	defaultMaxAttempts   = 10
)

// Sink receives decoded events. Delivery to sockets, email or SMS lives
// behind this interface.
type Sink interface {
	Deliver(ctx context.Context, event models.OutboxEvent, envelope PayloadEnvelope) error
}

// LogSink writes events to the structured log and nothing else.
type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Deliver(ctx context.Context, event models.OutboxEvent, envelope PayloadEnvelope) error {
	if s.Logger == nil {
		return nil
	}
	logCtx := s.Logger.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	})
	s.Logger.Info(logCtx, "outbox event delivered")
	return nil
}

// Dispatcher drains unpublished rows into a Sink.
type Dispatcher struct {
	repo        *Repository
	sink        Sink
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewDispatcher(repo *Repository, sink Sink, batchSize, maxAttempts int) (*Dispatcher, error) {
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	if sink == nil {
		return nil, errors.New("outbox sink required")
	}
	if batchSize <= 0 {
		batchSize = defaultDispatchBatch
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Dispatcher{repo: repo, sink: sink, batchSize: batchSize, maxAttempts: maxAttempts, now: time.Now}, nil
}

// DispatchOnce delivers up to one batch and reports how many rows were published.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	rows, err := d.repo.FetchUnpublished(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}
	published := 0
	var errs error
	for _, row := range rows {
		envelope, decodeErr := DecodeEnvelope(row.Payload)
		if decodeErr == nil {
			decodeErr = d.sink.Deliver(ctx, row, envelope)
		}
		if decodeErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", row.ID, decodeErr))
			if markErr := d.repo.MarkFailed(ctx, row.ID, decodeErr); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}
		if markErr := d.repo.MarkPublished(ctx, row.ID, d.now().UTC()); markErr != nil {
			errs = multierr.Append(errs, markErr)
			continue
		}
		published++
	}
	return published, errs
}
