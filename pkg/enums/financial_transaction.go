package enums

// FinancialTransactionType classifies money movements recorded against orders.
type FinancialTransactionType string

const (
	FinancialTransactionCODCollection FinancialTransactionType = "cod_collection"
	FinancialTransactionRefund        FinancialTransactionType = "refund"
)

func (t FinancialTransactionType) String() string {
	return string(t)
}

// FinancialTransactionStatus tracks settlement of a financial transaction.
type FinancialTransactionStatus string

const (
	FinancialTransactionPending   FinancialTransactionStatus = "pending"
	FinancialTransactionCollected FinancialTransactionStatus = "collected"
	FinancialTransactionDeposited FinancialTransactionStatus = "deposited"
)

func (s FinancialTransactionStatus) String() string {
	return string(s)
}
