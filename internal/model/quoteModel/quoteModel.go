package quoteModel

// RawQuote is the quote provider's wire format for a single instrument.
type RawQuote struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	LatestPrice float64 `json:"latestPrice"`
}
