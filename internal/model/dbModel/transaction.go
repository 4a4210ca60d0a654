package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	TransactionID int64           `db:"transaction_id"`
	UserID        int64           `db:"user_id"`
	Symbol        string          `db:"symbol"`
	Shares        int64           `db:"shares"`
	Price         decimal.Decimal `db:"price"`
	OpType        string          `db:"op_type"`
	Name          string          `db:"name"`
	CreatedAt     time.Time       `db:"dt_create"`
}

type Holding struct {
	Symbol    string `db:"symbol"`
	Name      string `db:"name"`
	NetShares int64  `db:"net_shares"`
}

type Valuation struct {
	UserID int64           `db:"user_id"`
	Date   time.Time       `db:"val_date"`
	Total  decimal.Decimal `db:"total"`
}
