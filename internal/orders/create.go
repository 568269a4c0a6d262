package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	var (
		order    *models.Order
		announce uow.HookFunc
	)
	work := uow.New("orders.create").
		Step("create_order", func(ctx context.Context, tx *gorm.DB) error {
			var err error
			order, announce, err = s.CreateTx(ctx, tx, input)
			return err
		})
	if input.Status == enums.OrderStatusDelivered {
		work.Optional("financial_sync", func(ctx context.Context, tx *gorm.DB) error {
			return s.syncDelivered(ctx, tx, order, input.ActorID)
		})
	}
	work.OnOptionalFailure(s.syncFailed(func() uuid.UUID { return order.ID })).
		AfterCommit(func(ctx context.Context) {
			if announce != nil {
				announce(ctx)
			}
		})

	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, uow.HookFunc, error) {
	if err := validateCreate(&input); err != nil {
		return nil, nil, err
	}
	customer, err := s.customers.Get(ctx, tx, input.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	items, subtotal, err := s.priceItems(ctx, tx, input.Items)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:               uuid.New(),
		CustomerID:       customer.ID,
		Status:           input.Status,
		PaymentStatus:    enums.PaymentStatusPending,
		SubtotalCents:    subtotal,
		TotalAmountCents: subtotal,
		AssignedAgentID:  input.AssignedAgentID,
		AssignedRepID:    input.AssignedRepID,
		Phone:            firstNonEmpty(input.Phone, customer.Phone),
		Address:          firstNonEmpty(input.Address, customer.Address),
		City:             firstNonEmpty(input.City, customer.City),
		OrderDate:        now,
		Items:            items,
	}
	order.OrderNumber = OrderNumber(now, order.ID)
	if input.TotalAmountCents != nil {
		order.TotalAmountCents = *input.TotalAmountCents
	}
	cod := order.TotalAmountCents
	if input.CODAmountCents != nil {
		cod = *input.CODAmountCents
	}
	order.CODAmountCents = &cod
	if input.OrderDate != nil && !input.OrderDate.IsZero() {
		order.OrderDate = input.OrderDate.UTC()
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		order.Notes = &notes
	}
	if order.Status == enums.OrderStatusDelivered {
		order.PaymentStatus = enums.PaymentStatusCollected
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := s.appendHistory(ctx, tx, order.ID, nil, order.Status, input.ActorID, "order created"); err != nil {
		return nil, nil, err
	}
	if order.Status.Deducted() {
		if err := s.reserve(ctx, tx, order); err != nil {
			return nil, nil, err
		}
	}
	if order.Status == enums.OrderStatusDelivered {
		if err := s.inventory.ConfirmOrderDelivery(ctx, tx, order); err != nil {
			return nil, nil, err
		}
	}

	created := *order
	announce := func(ctx context.Context) {
		if !input.Silent {
			s.publish(ctx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   created.ID,
				Actor:         actorRef(input.ActorID),
				Data: payloads.OrderCreatedEvent{
					OrderID:          created.ID,
					OrderNumber:      created.OrderNumber,
					Status:           created.Status,
					TotalAmountCents: created.TotalAmountCents,
					Imported:         input.Imported,
				},
			})
		}
		s.record(ctx, input.ActorID, "order.created", created.ID, map[string]any{
			"order_number": created.OrderNumber,
			"status":       created.Status,
			"imported":     input.Imported,
		})
	}
	return order, announce, nil
}

// priceItems loads every referenced product through tx and prices each line,
// defaulting to the catalog price.
func (s *service) priceItems(ctx context.Context, tx *gorm.DB, inputs []ItemInput) ([]models.OrderItem, int64, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, item := range inputs {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.catalog.GetMany(ctx, tx, ids)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.OrderItem, 0, len(inputs))
	var subtotal int64
	for _, in := range inputs {
		product, ok := catalog[in.ProductID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"productId": in.ProductID})
		}
		price := product.PriceCents
		if in.UnitPriceCents != nil {
			price = *in.UnitPriceCents
		}
		item := models.OrderItem{ProductID: product.ID, Quantity: in.Quantity, UnitPriceCents: price}
		subtotal += item.LineTotalCents()
		items = append(items, item)
	}
	return items, subtotal, nil
}

func validateCreate(input *CreateOrderInput) error {
	if input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.Status == "" {
		input.Status = enums.OrderStatusPendingConfirmation
	}
	if !input.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": input.Status})
	}
	if err := validateItems(input.Items); err != nil {
		return err
	}
	if input.TotalAmountCents != nil && *input.TotalAmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total amount must not be negative")
	}
	if input.CODAmountCents != nil && *input.CODAmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cod amount must not be negative")
	}
	return nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for i, item := range items {
		switch {
		case item.ProductID == uuid.Nil:
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").WithDetails(map[string]any{"item": i})
		case item.Quantity <= 0:
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(map[string]any{"item": i})
		case item.UnitPriceCents != nil && *item.UnitPriceCents < 0:
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").WithDetails(map[string]any{"item": i})
		}
	}
	return nil
}

// OrderNumber renders ORD-YYYYMMDD-XXXXXXXX from the creation date and id.
func OrderNumber(at time.Time, id uuid.UUID) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), hex[:8])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil || *actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *actorID}
}
