package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a derived position: the net shares a user currently owns in
// one symbol, summed over the ledger.
type Holding struct {
	Symbol    string
	Name      string
	NetShares int64
}

type PortfolioPosition struct {
	Holding
	CurrentPrice decimal.Decimal
	CurrentValue decimal.Decimal
}

type Portfolio struct {
	Positions  []PortfolioPosition
	Cash       decimal.Decimal
	TotalValue decimal.Decimal
}

type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// Valuation is a daily snapshot of total account value.
type Valuation struct {
	Date  time.Time
	Total decimal.Decimal
}
