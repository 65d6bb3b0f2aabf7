package models

// APIUsage is one handled-request telemetry entry.
type APIUsage struct {
	Endpoint     string `json:"endpoint"`
	Method       string `json:"method"`
	ResponseTime int64  `json:"responseTime"` // milliseconds
	StatusCode   int    `json:"statusCode"`
	Timestamp    int64  `json:"timestamp"`
	UserAgent    string `json:"userAgent"`
}

// APIStats aggregates APIUsage entries over a trailing time window
// swagger:model APIStats
type APIStats struct {
	// Number of requests in the window
	TotalRequests int `json:"totalRequests"`

	// Mean response time in milliseconds, 0 for an empty window
	AverageResponseTime float64 `json:"averageResponseTime"`

	// Request count per HTTP status code
	StatusCodes map[int]int `json:"statusCodes"`

	// Request count per endpoint path
	Endpoints map[string]int `json:"endpoints"`

	// Request count per hour of day (0-23)
	HourlyBreakdown map[int]int `json:"hourlyBreakdown"`
}
