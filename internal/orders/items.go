package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

// ReplaceItems deletes and recreates every line of an order that holds no
// reserved stock. A COD amount that tracked the old total follows the new one.
func (s *service) ReplaceItems(ctx context.Context, input ReplaceItemsInput) (*models.Order, error) {
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}
	if input.TotalAmountCents != nil && *input.TotalAmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount must not be negative")
	}
	current, err := s.loadActive(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.permissions.CanEdit(ctx, input.ActorID, current); err != nil {
		return nil, err
	}
	if current.Status.Deducted() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "items are locked once stock is reserved").
			WithDetails(map[string]any{"status": current.Status})
	}

	var order *models.Order
	actor := input.ActorID
	work := uow.New("orders.replace_items").
		Step("replace", func(ctx context.Context, tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			loaded, err := s.loadActive(ctx, repo, input.OrderID)
			if err != nil {
				return err
			}
			if loaded.Status.Deducted() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "items are locked once stock is reserved")
			}
			items, subtotal, err := s.priceItems(ctx, tx, input.Items)
			if err != nil {
				return err
			}
			total := subtotal
			if input.TotalAmountCents != nil {
				total = *input.TotalAmountCents
			}
			cod := loaded.CODAmountCents
			if cod == nil || *cod == loaded.TotalAmountCents {
				cod = &total
			}
			if err := repo.ReplaceItems(ctx, loaded.ID, items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace order items")
			}
			if err := repo.UpdateTotals(ctx, loaded.ID, subtotal, total, cod); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order totals")
			}
			loaded.Items, loaded.SubtotalCents, loaded.TotalAmountCents, loaded.CODAmountCents = items, subtotal, total, cod
			order = loaded
			return nil
		}).
		AfterCommit(func(ctx context.Context) {
			s.publish(ctx, outbox.DomainEvent{
				EventType:     enums.EventOrderItemsReplaced,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: actor},
				Data: payloads.OrderItemsReplacedEvent{
					OrderID:          order.ID,
					ItemCount:        len(order.Items),
					TotalAmountCents: order.TotalAmountCents,
				},
			})
			s.record(ctx, &actor, "order.items_replaced", order.ID, map[string]any{
				"item_count":   len(order.Items),
				"total_amount": order.TotalAmountCents,
			})
		})

	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return s.refreshed(ctx, order), nil
}
