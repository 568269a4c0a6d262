package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

// transitionState is shared by the steps of one transition.
type transitionState struct {
	order   *models.Order
	from    enums.OrderStatus
	to      enums.OrderStatus
	payment enums.PaymentStatus
}

// Transition moves an order to input.Status. Any status may follow any other;
// only entering or leaving the deducted set, delivery and return carry side
// effects. Validation, lookup and permission errors surface before a
// transaction opens.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": input.Status})
	}
	current, err := s.loadActive(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.permissions.CanTransition(ctx, input.ActorID, current, input.Status); err != nil {
		return nil, err
	}
	if current.Status == input.Status {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already in requested status").
			WithDetails(map[string]any{"status": current.Status})
	}

	actor := input.ActorID
	st := &transitionState{to: input.Status}
	work := uow.New("orders.transition").
		Step("reload", func(ctx context.Context, tx *gorm.DB) error {
			order, err := s.loadActive(ctx, s.repo.WithTx(tx), input.OrderID)
			if err != nil {
				return err
			}
			if order.Status == st.to {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order already in requested status")
			}
			st.order, st.from, st.payment = order, order.Status, order.PaymentStatus
			return nil
		}).
		Step("history", func(ctx context.Context, tx *gorm.DB) error {
			from := st.from
			return s.appendHistory(ctx, tx, st.order.ID, &from, st.to, &actor, input.Notes)
		}).
		Step("inventory", func(ctx context.Context, tx *gorm.DB) error {
			return s.moveStock(ctx, tx, st)
		}).
		Step("delivery", func(ctx context.Context, tx *gorm.DB) error {
			if st.to != enums.OrderStatusDelivered {
				return nil
			}
			st.payment = enums.PaymentStatusCollected
			return s.inventory.ConfirmOrderDelivery(ctx, tx, st.order)
		}).
		Step("persist_status", func(ctx context.Context, tx *gorm.DB) error {
			rows, err := s.repo.WithTx(tx).UpdateStatus(ctx, st.order.ID, st.from, st.to, st.payment)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order status")
			}
			if rows == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
			}
			st.order.Status, st.order.PaymentStatus = st.to, st.payment
			return nil
		})

	switch input.Status {
	case enums.OrderStatusDelivered:
		work.Optional("financial_sync", func(ctx context.Context, tx *gorm.DB) error {
			return s.syncDelivered(ctx, tx, st.order, &actor)
		})
	case enums.OrderStatusReturned:
		work.Step("revenue_reversal", func(ctx context.Context, tx *gorm.DB) error {
			return s.reverseRevenue(ctx, tx, st.order, &actor)
		})
	}

	work.OnOptionalFailure(s.syncFailed(func() uuid.UUID { return input.OrderID })).
		AfterCommit(func(ctx context.Context) {
			s.announceTransition(ctx, st, actor, input.Notes)
		})

	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return s.refreshed(ctx, st.order), nil
}

// moveStock reserves on entry to the deducted set, releases on exit, and
// walks fulfilled units back to in-transit when a delivery is undone.
func (s *service) moveStock(ctx context.Context, tx *gorm.DB, st *transitionState) error {
	fromDeducted, toDeducted := st.from.Deducted(), st.to.Deducted()
	switch {
	case !fromDeducted && toDeducted:
		return s.reserve(ctx, tx, st.order)
	case fromDeducted && !toDeducted:
		return s.release(ctx, tx, st.order, st.from == enums.OrderStatusDelivered)
	case st.from == enums.OrderStatusDelivered && st.to != enums.OrderStatusDelivered:
		return s.inventory.RevertOrderDelivery(ctx, tx, st.order)
	}
	return nil
}

// syncDelivered runs the financial sync for a just-delivered order.
func (s *service) syncDelivered(ctx context.Context, tx *gorm.DB, order *models.Order, actorID *uuid.UUID) error {
	result, err := s.finance.SyncTx(ctx, tx, order.ID, actorID)
	if err != nil {
		return err
	}
	if result.Synced() {
		order.RevenueRecognized = true
		s.metrics.ObserveSync("synced")
	} else {
		s.metrics.ObserveSync("skipped")
	}
	return nil
}

// syncFailed logs a financial sync failure and lets the rest of the unit of
// work commit. The batch sync picks the order up later.
func (s *service) syncFailed(orderID func() uuid.UUID) uow.FailureFunc {
	return func(ctx context.Context, step string, err error) {
		s.metrics.ObserveSync("failed")
		logCtx := s.logg.WithOrderID(ctx, orderID().String())
		logCtx = s.logg.WithField(logCtx, "step", step)
		s.logg.Error(logCtx, "financial sync failed; order left unsynced", err)
	}
}

// reverseRevenue cancels the active delivery entry of a returned order.
func (s *service) reverseRevenue(ctx context.Context, tx *gorm.DB, order *models.Order, actorID *uuid.UUID) error {
	if !order.RevenueRecognized {
		return nil
	}
	original, err := s.ledger.LatestActiveEntry(ctx, tx, enums.JournalSourceOrderDelivery, order.ID)
	if err != nil {
		return err
	}
	if original != nil {
		reversal, err := s.ledger.CreateReturnReversalEntry(ctx, tx, order, original, actorID)
		if err != nil {
			return err
		}
		if s.events != nil {
			reversesID := original.ID
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRevenueReversed,
				AggregateType: enums.AggregateJournalEntry,
				AggregateID:   reversal.ID,
				Actor:         actorRef(actorID),
				Data: payloads.RevenueEvent{
					OrderID:        order.ID,
					JournalEntryID: reversal.ID,
					EntryNumber:    reversal.EntryNumber,
					AmountCents:    order.CollectibleCents(),
					ReversesID:     &reversesID,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit revenue reversal")
			}
		}
	}
	if err := s.repo.WithTx(tx).SetRevenueRecognized(ctx, order.ID, false); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear revenue recognition")
	}
	order.RevenueRecognized = false
	return nil
}

func (s *service) announceTransition(ctx context.Context, st *transitionState, actor uuid.UUID, notes string) {
	logCtx := s.logg.WithOrderID(ctx, st.order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from_status": st.from,
		"to_status":   st.to,
	})
	s.logg.Info(logCtx, "order.transition")
	s.metrics.ObserveTransition(string(st.from), string(st.to))

	s.publish(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   st.order.ID,
		Actor:         &outbox.ActorRef{UserID: actor},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:         st.order.ID,
			OrderNumber:     st.order.OrderNumber,
			FromStatus:      st.from,
			ToStatus:        st.to,
			AssignedAgentID: st.order.AssignedAgentID,
			Notes:           notes,
		},
	})
	s.record(ctx, &actor, "order.status_changed", st.order.ID, map[string]any{
		"from": st.from,
		"to":   st.to,
	})
}

// refreshed rereads the committed order, falling back to the in-memory copy.
func (s *service) refreshed(ctx context.Context, order *models.Order) *models.Order {
	fresh, err := s.repo.FindActive(ctx, order.ID)
	if err != nil {
		return order
	}
	return fresh
}
