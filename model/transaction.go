package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single normalized line item parsed from a financial
// document. Amount sign convention: positive is inflow, negative is outflow.
type Transaction struct {
	ID             int64                  `json:"-"`
	TransactionID  string                 `json:"id"`
	DocumentID     string                 `json:"document_id"`
	OwnerID        string                 `json:"owner_id"`
	Date           time.Time              `json:"date"`
	Vendor         string                 `json:"vendor"`
	RawDescription string                 `json:"raw_description"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Category       string                 `json:"category"`
	Confidence     float64                `json:"confidence"`
	CreatedAt      time.Time              `json:"created_at"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// IsInflow reports whether the amount represents income.
func (t *Transaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

func (t *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}
