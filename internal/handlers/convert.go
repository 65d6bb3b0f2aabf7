package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sbilibin2017/currency-converter/internal/facades"
	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/services"
)

// maxConvertAmount caps the accepted amount to keep the arithmetic sane.
const maxConvertAmount = 1_000_000_000

// Converter performs a currency conversion.
type Converter interface {
	Convert(ctx context.Context, from, to string, amount float64, userAgent string) (models.ConversionResult, error)
}

// ConvertResponse represents a successful conversion response
// swagger:model ConvertResponse
type ConvertResponse struct {
	// Always true on success
	Success bool `json:"success"`

	// Conversion result
	Data models.ConversionResult `json:"data"`
}

// ErrorResponse represents an API error
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Short error label
	// example: Invalid amount
	Error string `json:"error"`

	// Human-readable explanation
	Message string `json:"message,omitempty"`

	// Usage example for malformed requests
	Example string `json:"example,omitempty"`
}

// NewConvertHandler handles currency conversion requests.
// @Summary Convert an amount between two currencies
// @Description Converts amount from one currency to another using the latest cached or fetched exchange rates.
// @Tags convert
// @Produce json
// @Param from query string true "Source currency code" example(USD)
// @Param to query string true "Target currency code" example(EUR)
// @Param amount query number true "Amount to convert" example(100)
// @Success 200 {object} handlers.ConvertResponse "Conversion result"
// @Failure 400 {object} handlers.ErrorResponse "Invalid parameters or unsupported currency"
// @Failure 429 {object} handlers.ErrorResponse "Upstream rate limit exceeded"
// @Failure 503 {object} handlers.ErrorResponse "Upstream temporarily unavailable"
// @Router /api/convert [get]
func NewConvertHandler(converter Converter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		amountParam := r.URL.Query().Get("amount")

		if from == "" || to == "" || amountParam == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   "Missing required parameters",
				Message: "Please provide from, to, and amount query parameters",
				Example: "/api/convert?from=USD&to=EUR&amount=100",
			})
			return
		}

		for _, code := range []string{from, to} {
			if !services.IsValidCurrencyCode(normalizeCode(code)) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(ErrorResponse{
					Error:   "Invalid currency code",
					Message: "Currency must be a valid 3-letter code (e.g., USD, EUR, GBP)",
				})
				return
			}
		}

		amount, err := strconv.ParseFloat(amountParam, 64)
		if err != nil || amount <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   "Invalid amount",
				Message: "Amount must be a positive number greater than 0",
			})
			return
		}
		if amount > maxConvertAmount {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   "Amount too large",
				Message: "Amount must be less than 1,000,000,000",
			})
			return
		}

		result, err := converter.Convert(r.Context(), from, to, amount, r.UserAgent())
		if err != nil {
			writeConvertError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ConvertResponse{Success: true, Data: result})
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func writeConvertError(w http.ResponseWriter, err error) {
	var unsupported *services.UnsupportedCurrencyError
	var netErr net.Error

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Invalid amount",
			Message: "Amount must be a positive number greater than 0",
		})
	case errors.As(err, &unsupported):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Unsupported currency",
			Message: unsupported.Error(),
		})
	case errors.Is(err, facades.ErrMissingAPIKey) || errors.Is(err, facades.ErrUnauthorized):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Service configuration error",
			Message: "Currency conversion service is not properly configured",
		})
	case errors.Is(err, facades.ErrRateLimited):
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Rate limit exceeded",
			Message: "Too many requests. Please try again later.",
		})
	case errors.Is(err, facades.ErrUnavailable) || errors.As(err, &netErr):
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Service unavailable",
			Message: "Currency conversion service is temporarily unavailable",
		})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Internal server error",
			Message: "An unexpected error occurred while processing your request",
		})
	}
}
