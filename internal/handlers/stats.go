package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/storage"
)

// StatsReader exposes the domain store's telemetry and diagnostics.
type StatsReader interface {
	Stats() ([]storage.TableStats, error)
	APIStats(hours int) (models.APIStats, error)
	ConversionHistory(limit int) ([]models.Conversion, error)
	Cleanup() int
}

// DatabaseStats describes the in-memory store
// swagger:model DatabaseStats
type DatabaseStats struct {
	Tables         []storage.TableStats `json:"tables"`
	CleanedRecords int                  `json:"cleanedRecords"`
}

// UsageStats is the aggregated API usage for the requested window
// swagger:model UsageStats
type UsageStats struct {
	models.APIStats
	PeriodHours int `json:"periodHours"`
}

// StatsData is the payload of a stats response
// swagger:model StatsData
type StatsData struct {
	Database DatabaseStats `json:"database"`
	API      UsageStats    `json:"api"`

	Performance struct {
		ResponseTime int64 `json:"responseTime"`
		Timestamp    int64 `json:"timestamp"`
	} `json:"performance"`

	ConversionHistory []models.Conversion `json:"conversionHistory,omitempty"`
}

// StatsResponse represents a successful stats response
// swagger:model StatsResponse
type StatsResponse struct {
	Success bool      `json:"success"`
	Data    StatsData `json:"data"`
}

// NewStatsHandler handles operational statistics requests.
// @Summary Get store and API usage statistics
// @Description Returns per-table diagnostics, aggregated API usage for a trailing window and optionally recent conversion history. Expired records are swept as a side effect.
// @Tags stats
// @Produce json
// @Param hours query int false "Trailing window in hours" default(24)
// @Param include_history query bool false "Include the last 50 conversions"
// @Success 200 {object} handlers.StatsResponse "Operational statistics"
// @Failure 500 {object} handlers.ErrorResponse "Internal server error"
// @Router /api/stats [get]
func NewStatsHandler(reader StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		start := time.Now()

		hours := 24
		if h := r.URL.Query().Get("hours"); h != "" {
			if parsed, err := strconv.Atoi(h); err == nil && parsed > 0 {
				hours = parsed
			}
		}

		tables, err := reader.Stats()
		if err != nil {
			writeStatsError(w)
			return
		}

		apiStats, err := reader.APIStats(hours)
		if err != nil {
			writeStatsError(w)
			return
		}

		var data StatsData
		data.Database = DatabaseStats{
			Tables:         tables,
			CleanedRecords: reader.Cleanup(),
		}
		data.API = UsageStats{APIStats: apiStats, PeriodHours: hours}

		if r.URL.Query().Get("include_history") == "true" {
			history, err := reader.ConversionHistory(50)
			if err != nil {
				writeStatsError(w)
				return
			}
			data.ConversionHistory = history
		}

		data.Performance.ResponseTime = time.Since(start).Milliseconds()
		data.Performance.Timestamp = models.NowMillis()

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(StatsResponse{Success: true, Data: data})
	}
}

func writeStatsError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   "Internal server error",
		Message: "An unexpected error occurred while fetching statistics",
	})
}
