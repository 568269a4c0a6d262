package enums

import "fmt"

// OrderStatus tracks where a cash-on-delivery order is in its lifecycle.
type OrderStatus string

const (
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusConfirmed           OrderStatus = "confirmed"
	OrderStatusPreparing           OrderStatus = "preparing"
	OrderStatusReadyForPickup      OrderStatus = "ready_for_pickup"
	OrderStatusOutForDelivery      OrderStatus = "out_for_delivery"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusCancelled           OrderStatus = "cancelled"
	OrderStatusReturned            OrderStatus = "returned"
	OrderStatusFailedDelivery      OrderStatus = "failed_delivery"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingConfirmation,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReadyForPickup,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
	OrderStatusFailedDelivery,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Deducted reports whether inventory is reserved against orders in this status.
func (s OrderStatus) Deducted() bool {
	return s == OrderStatusOutForDelivery || s == OrderStatusDelivered
}

// OrderStatuses returns every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
