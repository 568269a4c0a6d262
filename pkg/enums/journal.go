package enums

import "fmt"

// JournalSourceType links a journal entry back to the record that produced it.
type JournalSourceType string

const (
	JournalSourceOrderDelivery JournalSourceType = "order_delivery"
	JournalSourceOrderReturn   JournalSourceType = "order_return"
	JournalSourceVoid          JournalSourceType = "void"
)

var validJournalSourceTypes = []JournalSourceType{
	JournalSourceOrderDelivery,
	JournalSourceOrderReturn,
	JournalSourceVoid,
}

func (s JournalSourceType) String() string {
	return string(s)
}

func (s JournalSourceType) IsValid() bool {
	for _, candidate := range validJournalSourceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseJournalSourceType converts raw input into a JournalSourceType.
func ParseJournalSourceType(value string) (JournalSourceType, error) {
	for _, candidate := range validJournalSourceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid journal source type %q", value)
}

// AccountType is the normal-balance class of a ledger account.
type AccountType string

const (
	AccountTypeAsset   AccountType = "asset"
	AccountTypeRevenue AccountType = "revenue"
	AccountTypeExpense AccountType = "expense"
)
