package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// OrderLedger is the in-transaction surface the order state machine drives.
// Every method writes through tx only.
type OrderLedger interface {
	// RecordOrderFulfillment takes each product wholly from the agent when the
	// agent holds enough, and returns the products it covered. The caller
	// deducts the rest from the warehouse.
	RecordOrderFulfillment(ctx context.Context, tx *gorm.DB, order *models.Order, agentID *uuid.UUID, items []models.OrderItem) ([]uuid.UUID, error)
	// ConfirmOrderDelivery moves the order's in-transit units to fulfilled.
	ConfirmOrderDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error
	// RevertOrderDelivery moves the order's fulfilled units back to in-transit.
	RevertOrderDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error
	// ReverseOrderFulfillment gives agents back exactly what the order took
	// from them and returns the products it handled.
	ReverseOrderFulfillment(ctx context.Context, tx *gorm.DB, order *models.Order, wasDelivered bool) ([]uuid.UUID, error)
	DeductWarehouse(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	RestockWarehouse(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type holding struct {
	agentID   uuid.UUID
	productID uuid.UUID
}

// AggregateItems sums quantities per product, ordered by product id.
func AggregateItems(items []models.OrderItem) []models.OrderItem {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}
	out := make([]models.OrderItem, 0, len(totals))
	for productID, qty := range totals {
		out = append(out, models.OrderItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out
}

func (s *service) RecordOrderFulfillment(ctx context.Context, tx *gorm.DB, order *models.Order, agentID *uuid.UUID, items []models.OrderItem) ([]uuid.UUID, error) {
	if agentID == nil || *agentID == uuid.Nil {
		return nil, nil
	}
	repo := s.repo.WithTx(tx)
	handled := make([]uuid.UUID, 0, len(items))
	for _, item := range AggregateItems(items) {
		if item.Quantity <= 0 {
			continue
		}
		rows, err := repo.ApplyAgentDelta(ctx, *agentID, item.ProductID, agentDelta{
			quantity:  -item.Quantity,
			inTransit: item.Quantity,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve agent stock")
		}
		if rows == 0 {
			continue
		}
		orderID := order.ID
		if err := s.record(ctx, tx, &models.InventoryTransfer{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			TransferType: enums.TransferTypeOrderFulfillment,
			FromAgentID:  uuidPtr(*agentID),
			OrderID:      &orderID,
		}); err != nil {
			return nil, err
		}
		handled = append(handled, item.ProductID)
	}
	return handled, nil
}

func (s *service) ConfirmOrderDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return s.shiftDelivered(ctx, tx, order, 1)
}

func (s *service) RevertOrderDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return s.shiftDelivered(ctx, tx, order, -1)
}

// shiftDelivered moves outstanding units between in-transit and fulfilled;
// sign 1 confirms delivery, -1 undoes it.
func (s *service) shiftDelivered(ctx context.Context, tx *gorm.DB, order *models.Order, sign int) error {
	repo := s.repo.WithTx(tx)
	outstanding, err := s.outstanding(ctx, repo, order.ID)
	if err != nil {
		return err
	}
	for _, h := range sortedHoldings(outstanding) {
		qty := outstanding[h]
		rows, err := repo.ApplyAgentDelta(ctx, h.agentID, h.productID, agentDelta{
			inTransit: -sign * qty,
			fulfilled: sign * qty,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivered stock")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "agent stock does not cover the order's units").
				WithDetails(map[string]any{"orderId": order.ID, "productId": h.productID, "agentId": h.agentID})
		}
	}
	return nil
}

func (s *service) ReverseOrderFulfillment(ctx context.Context, tx *gorm.DB, order *models.Order, wasDelivered bool) ([]uuid.UUID, error) {
	repo := s.repo.WithTx(tx)
	outstanding, err := s.outstanding(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(outstanding))
	handled := make([]uuid.UUID, 0, len(outstanding))
	for _, h := range sortedHoldings(outstanding) {
		qty := outstanding[h]
		d := agentDelta{quantity: qty, inTransit: -qty}
		if wasDelivered {
			d = agentDelta{quantity: qty, fulfilled: -qty}
		}
		rows, err := repo.ApplyAgentDelta(ctx, h.agentID, h.productID, d)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore agent stock")
		}
		if rows == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "agent stock does not cover the order's units").
				WithDetails(map[string]any{"orderId": order.ID, "productId": h.productID, "agentId": h.agentID})
		}
		orderID := order.ID
		notes := fmt.Sprintf("reversal of %s", order.OrderNumber)
		if err := s.record(ctx, tx, &models.InventoryTransfer{
			ProductID:    h.productID,
			Quantity:     qty,
			TransferType: enums.TransferTypeAdjustment,
			ToAgentID:    uuidPtr(h.agentID),
			OrderID:      &orderID,
			Notes:        &notes,
		}); err != nil {
			return nil, err
		}
		if _, ok := seen[h.productID]; !ok {
			seen[h.productID] = struct{}{}
			handled = append(handled, h.productID)
		}
	}
	return handled, nil
}

// outstanding nets the order's fulfillment rows against its reversal rows,
// per agent and product.
func (s *service) outstanding(ctx context.Context, repo *Repository, orderID uuid.UUID) (map[holding]int, error) {
	rows, err := repo.ListOrderTransfers(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order transfers")
	}
	net := make(map[holding]int)
	for _, row := range rows {
		switch row.TransferType {
		case enums.TransferTypeOrderFulfillment:
			if row.FromAgentID != nil {
				net[holding{agentID: *row.FromAgentID, productID: row.ProductID}] += row.Quantity
			}
		case enums.TransferTypeAdjustment:
			if row.ToAgentID != nil {
				net[holding{agentID: *row.ToAgentID, productID: row.ProductID}] -= row.Quantity
			}
		}
	}
	for h, qty := range net {
		if qty <= 0 {
			delete(net, h)
		}
	}
	return net, nil
}

func sortedHoldings(m map[holding]int) []holding {
	out := make([]holding, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].productID != out[j].productID {
			return out[i].productID.String() < out[j].productID.String()
		}
		return out[i].agentID.String() < out[j].agentID.String()
	})
	return out
}
