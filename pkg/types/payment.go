package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "INR"

// Payment is the bookkeeping sub-record of an order. No gateway is called.
type Payment struct {
	Method        string           `json:"method"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Status        string           `json:"status"`
	Gateway       string           `json:"gateway"`
	TransactionID *string          `json:"transaction_id,omitempty"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	RefundedAt    *time.Time       `json:"refunded_at,omitempty"`
	RefundAmount  *decimal.Decimal `json:"refund_amount,omitempty"`
}

// Value serializes the payment to JSON.
func (p Payment) Value() (driver.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the payment.
func (p *Payment) Scan(value interface{}) error {
	if value == nil {
		*p = Payment{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, p)
}
