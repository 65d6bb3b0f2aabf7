package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sbilibin2017/currency-converter/internal/facades"
)

// ProviderUsageReader fetches quota statistics from the rates provider.
type ProviderUsageReader interface {
	Usage(ctx context.Context) (*facades.ProviderUsage, error)
}

// ProviderUsageResponse represents the provider quota report
// swagger:model ProviderUsageResponse
type ProviderUsageResponse struct {
	Success bool                   `json:"success"`
	Data    *facades.ProviderUsage `json:"data"`
}

// NewProviderUsageHandler reports the upstream provider's request quota.
// @Summary Get provider quota usage
// @Description Returns the Open Exchange Rates plan and request quota statistics for the configured app id.
// @Tags stats
// @Produce json
// @Success 200 {object} handlers.ProviderUsageResponse "Provider quota statistics"
// @Failure 503 {object} handlers.ErrorResponse "Provider unavailable"
// @Router /api/usage [get]
func NewProviderUsageHandler(reader ProviderUsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		usage, err := reader.Usage(r.Context())
		if err != nil {
			writeRatesError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ProviderUsageResponse{Success: true, Data: usage})
	}
}
