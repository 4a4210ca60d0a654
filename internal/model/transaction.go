package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OpTypeBuy  = "buy"
	OpTypeSell = "sell"
)

// Transaction is one ledger row. Shares is signed: positive for buys,
// negative for sells.
type Transaction struct {
	TransactionID int64
	UserID        int64
	Symbol        string
	Shares        int64
	Price         decimal.Decimal
	OpType        string
	Name          string
	CreatedAt     time.Time
}

// Total is the cash delta of the transaction, always non-negative.
func (t Transaction) Total() decimal.Decimal {
	total := t.Price.Mul(decimal.NewFromInt(t.Shares))
	return total.Abs()
}
