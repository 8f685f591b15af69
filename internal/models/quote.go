package models

import "time"

// SourceTradingView tags every quote produced from the vendor feed.
const SourceTradingView = "tradingview"

// Quote is one normalized price observation for a single instrument.
// Optional fields are nil when the feed did not carry them and encode as JSON null.
// A Quote is never mutated after construction.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Bid    *float64  `json:"bid"`
	Ask    *float64  `json:"ask"`
	Open   *float64  `json:"open"`
	Close  *float64  `json:"close"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Volume *float64  `json:"volume"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
}
