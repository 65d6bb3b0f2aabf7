package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sbilibin2017/currency-converter/internal/facades"
	"github.com/sbilibin2017/currency-converter/internal/models"
)

// RatesReader returns the current exchange rates snapshot.
type RatesReader interface {
	Rates(ctx context.Context) (models.RatesResponse, error)
	SupportedCurrencies(ctx context.Context) ([]string, error)
}

// RatesData is the payload of a rates response
// swagger:model RatesData
type RatesData struct {
	Rates        map[string]float64 `json:"rates"`
	BaseCurrency string             `json:"baseCurrency"`
	Timestamp    int64              `json:"timestamp"`
	LastUpdated  string             `json:"lastUpdated"`

	// Populated only when specific currencies are requested
	RequestedCurrencies []string `json:"requestedCurrencies,omitempty"`
	AvailableCurrencies []string `json:"availableCurrencies,omitempty"`

	// Populated only when include_currencies=true
	SupportedCurrencies []string `json:"supportedCurrencies,omitempty"`
	TotalCurrencies     int      `json:"totalCurrencies,omitempty"`
}

// RatesAPIResponse represents a successful rates response
// swagger:model RatesAPIResponse
type RatesAPIResponse struct {
	Success bool      `json:"success"`
	Data    RatesData `json:"data"`
}

// NewRatesHandler handles exchange rate listing requests.
// @Summary Get the latest exchange rates
// @Description Returns the current rates snapshot relative to the base currency, optionally filtered to specific currencies.
// @Tags rates
// @Produce json
// @Param currencies query string false "Comma-separated currency codes to include" example(EUR,GBP)
// @Param include_currencies query bool false "Include the sorted list of supported currencies"
// @Success 200 {object} handlers.RatesAPIResponse "Current exchange rates"
// @Failure 429 {object} handlers.ErrorResponse "Upstream rate limit exceeded"
// @Failure 503 {object} handlers.ErrorResponse "Upstream temporarily unavailable"
// @Router /api/rates [get]
func NewRatesHandler(reader RatesReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ratesData, err := reader.Rates(r.Context())
		if err != nil {
			writeRatesError(w, err)
			return
		}

		data := RatesData{
			Rates:        ratesData.Rates,
			BaseCurrency: ratesData.BaseCurrency,
			Timestamp:    ratesData.Timestamp,
			LastUpdated:  time.UnixMilli(ratesData.Timestamp).UTC().Format(time.RFC3339),
		}

		if includeList := r.URL.Query().Get("currencies"); includeList != "" {
			requested := splitCodes(includeList)
			filtered := make(map[string]float64, len(requested))
			available := make([]string, 0, len(requested))
			for _, code := range requested {
				switch {
				case code == ratesData.BaseCurrency:
					filtered[code] = 1
					available = append(available, code)
				default:
					if rate, ok := ratesData.Rates[code]; ok {
						filtered[code] = rate
						available = append(available, code)
					}
				}
			}
			data.Rates = filtered
			data.RequestedCurrencies = requested
			data.AvailableCurrencies = available
		}

		if r.URL.Query().Get("include_currencies") == "true" {
			supported, err := reader.SupportedCurrencies(r.Context())
			if err != nil {
				writeRatesError(w, err)
				return
			}
			data.SupportedCurrencies = supported
			data.TotalCurrencies = len(supported)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(RatesAPIResponse{Success: true, Data: data})
	}
}

func splitCodes(list string) []string {
	parts := strings.Split(strings.ToUpper(list), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := strings.TrimSpace(p); code != "" {
			out = append(out, code)
		}
	}
	return out
}

func writeRatesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, facades.ErrMissingAPIKey) || errors.Is(err, facades.ErrUnauthorized):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Service configuration error",
			Message: "Exchange rates service is not properly configured",
		})
	case errors.Is(err, facades.ErrRateLimited):
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Rate limit exceeded",
			Message: "Too many requests. Please try again later.",
		})
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Service unavailable",
			Message: "Failed to retrieve exchange rates",
		})
	}
}
