package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/inventory"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
)

// reserve takes the order's units from the assigned agent where the agent
// holds enough and from the warehouse otherwise. A shortfall anywhere fails
// the whole reservation and the caller's transaction rolls it back.
func (s *service) reserve(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	covered, err := s.inventory.RecordOrderFulfillment(ctx, tx, order, order.AssignedAgentID, order.Items)
	if err != nil {
		return err
	}
	skip := productSet(covered)
	for _, item := range inventory.AggregateItems(order.Items) {
		if _, ok := skip[item.ProductID]; ok {
			continue
		}
		if err := s.inventory.DeductWarehouse(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// release undoes reserve: agents get back exactly what their transfer rows
// say they gave, and the warehouse gets the rest.
func (s *service) release(ctx context.Context, tx *gorm.DB, order *models.Order, wasDelivered bool) error {
	handled, err := s.inventory.ReverseOrderFulfillment(ctx, tx, order, wasDelivered)
	if err != nil {
		return err
	}
	skip := productSet(handled)
	for _, item := range inventory.AggregateItems(order.Items) {
		if _, ok := skip[item.ProductID]; ok {
			continue
		}
		if err := s.inventory.RestockWarehouse(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func productSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
