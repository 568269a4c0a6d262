package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateInventory    OutboxAggregateType = "inventory"
	AggregateJournalEntry OutboxAggregateType = "journal_entry"
	AggregateImport       OutboxAggregateType = "import"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateInventory,
	AggregateJournalEntry,
	AggregateImport,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderItemsReplaced OutboxEventType = "order_items_replaced"
	EventOrderDeleted       OutboxEventType = "order_deleted"
	EventStockMoved         OutboxEventType = "stock_moved"
	EventRevenueRecognized  OutboxEventType = "revenue_recognized"
	EventRevenueReversed    OutboxEventType = "revenue_reversed"
	EventImportCompleted    OutboxEventType = "import_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderItemsReplaced,
	EventOrderDeleted,
	EventStockMoved,
	EventRevenueRecognized,
	EventRevenueReversed,
	EventImportCompleted,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
