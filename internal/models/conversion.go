package models

// ConversionResult represents a completed currency conversion
// swagger:model ConversionResult
type ConversionResult struct {
	// Amount requested for conversion
	// example: 100.0
	OriginalAmount float64 `json:"originalAmount"`

	// Source currency code
	// example: USD
	FromCurrency string `json:"fromCurrency"`

	// Target currency code
	// example: EUR
	ToCurrency string `json:"toCurrency"`

	// Converted amount, rounded to 4 decimal places
	// example: 86.77
	ConvertedAmount float64 `json:"convertedAmount"`

	// Exchange rate applied, rounded to 4 decimal places
	// example: 0.8677
	RateUsed float64 `json:"rateUsed"`

	// Timestamp of the rates snapshot used, Unix milliseconds
	Timestamp int64 `json:"timestamp"`

	// Base currency the snapshot is expressed against
	// example: USD
	BaseCurrency string `json:"baseCurrency"`
}

// Conversion is one conversion history entry. Entries are written once per
// completed conversion and kept only for observability.
type Conversion struct {
	FromCurrency    string  `json:"fromCurrency"`
	ToCurrency      string  `json:"toCurrency"`
	Amount          float64 `json:"amount"`
	ConvertedAmount float64 `json:"convertedAmount"`
	Rate            float64 `json:"rate"`
	Timestamp       int64   `json:"timestamp"`
	UserAgent       string  `json:"userAgent"`
}
