package models

import "time"

// BaseCurrency is the currency all provider rates are expressed against.
// The Open Exchange Rates free plan fixes the base to USD.
const BaseCurrency = "USD"

// RatesResponse represents one fetched set of exchange rates relative to the base currency
// swagger:model RatesResponse
type RatesResponse struct {
	// Currency code mapped to its rate relative to the base currency
	Rates map[string]float64 `json:"rates"`

	// Fetch time in Unix milliseconds
	// example: 1700000000000
	Timestamp int64 `json:"timestamp"`

	// Base currency of the mapping
	// example: USD
	BaseCurrency string `json:"baseCurrency"`
}

// RateSnapshot is a stored rates snapshot. Snapshots are immutable: newer
// fetches insert new snapshots rather than mutating older ones.
type RateSnapshot struct {
	BaseCurrency string             `json:"baseCurrency"`
	Rates        map[string]float64 `json:"rates"`
	Timestamp    int64              `json:"timestamp"`
	Source       string             `json:"source"`
}

// NowMillis returns the current wall-clock time in Unix milliseconds,
// the timestamp unit used across snapshots and telemetry records.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
