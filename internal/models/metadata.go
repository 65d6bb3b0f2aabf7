package models

// CurrencyMetadata describes a currency for validation and display.
// Loaded once from the provider's currency list, never used for rate math.
type CurrencyMetadata struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Country  string `json:"country"`
	IsActive bool   `json:"isActive"`
}
