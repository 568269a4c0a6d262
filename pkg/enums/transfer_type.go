package enums

import "fmt"

// TransferType classifies an inventory transfer row.
type TransferType string

const (
	TransferTypeAllocation        TransferType = "allocation"
	TransferTypeAgentTransfer     TransferType = "agent_transfer"
	TransferTypeReturnToWarehouse TransferType = "return_to_warehouse"
	TransferTypeOrderFulfillment  TransferType = "order_fulfillment"
	TransferTypeAdjustment        TransferType = "adjustment"
)

var validTransferTypes = []TransferType{
	TransferTypeAllocation,
	TransferTypeAgentTransfer,
	TransferTypeReturnToWarehouse,
	TransferTypeOrderFulfillment,
	TransferTypeAdjustment,
}

// String implements fmt.Stringer.
func (t TransferType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransferType.
func (t TransferType) IsValid() bool {
	for _, candidate := range validTransferTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferType converts raw input into a TransferType.
func ParseTransferType(value string) (TransferType, error) {
	for _, candidate := range validTransferTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer type %q", value)
}
