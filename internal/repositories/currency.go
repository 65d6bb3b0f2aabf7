package repositories

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/storage"
)

const (
	tableRates    = "exchange_rates"
	tableHistory  = "conversion_history"
	tableMetadata = "currency_metadata"
	tableUsage    = "api_usage"

	// DefaultRatesTTLHours is the freshness window for rate snapshots.
	DefaultRatesTTLHours = 1.0

	// DefaultTelemetryTTLHours is the retention window for conversion
	// history and API usage records.
	DefaultTelemetryTTLHours = 24.0

	// DefaultRatesSource labels snapshots fetched from the provider.
	DefaultRatesSource = "openexchangerates"
)

// CurrencyRepository is the typed domain store: four pre-configured tables
// over the in-memory record store with domain TTLs.
type CurrencyRepository struct {
	db           *storage.MemDB
	ratesTTL     float64
	telemetryTTL float64
	log          *zap.SugaredLogger
}

// NewCurrencyRepository creates the domain tables on db. Non-positive TTLs
// take the defaults (rates 1h, telemetry 24h).
func NewCurrencyRepository(db *storage.MemDB, ratesTTLHours, telemetryTTLHours float64, log *zap.SugaredLogger) (*CurrencyRepository, error) {
	if ratesTTLHours <= 0 {
		ratesTTLHours = DefaultRatesTTLHours
	}
	if telemetryTTLHours <= 0 {
		telemetryTTLHours = DefaultTelemetryTTLHours
	}

	tables := []struct {
		name   string
		schema storage.Schema
	}{
		{tableRates, storage.Schema{
			"baseCurrency": storage.String,
			"rates":        storage.Object,
			"timestamp":    storage.Number,
			"source":       storage.String,
		}},
		{tableHistory, storage.Schema{
			"fromCurrency":    storage.String,
			"toCurrency":      storage.String,
			"amount":          storage.Number,
			"convertedAmount": storage.Number,
			"rate":            storage.Number,
			"timestamp":       storage.Number,
			"userAgent":       storage.String,
		}},
		{tableMetadata, storage.Schema{
			"code":     storage.String,
			"name":     storage.String,
			"symbol":   storage.String,
			"country":  storage.String,
			"isActive": storage.Boolean,
		}},
		{tableUsage, storage.Schema{
			"endpoint":     storage.String,
			"method":       storage.String,
			"responseTime": storage.Number,
			"statusCode":   storage.Number,
			"timestamp":    storage.Number,
			"userAgent":    storage.String,
		}},
	}

	for _, tbl := range tables {
		if err := db.CreateTable(tbl.name, tbl.schema); err != nil {
			return nil, err
		}
	}
	log.Infow("domain tables created", "tables", db.ListTables())

	return &CurrencyRepository{
		db:           db,
		ratesTTL:     ratesTTLHours,
		telemetryTTL: telemetryTTLHours,
		log:          log,
	}, nil
}

// SaveRates stores a new rates snapshot with the rates TTL. Snapshots are
// never mutated; newer ones supersede older by timestamp.
func (r *CurrencyRepository) SaveRates(base string, rates map[string]float64, source string) (string, error) {
	if source == "" {
		source = DefaultRatesSource
	}
	return r.db.Insert(tableRates, map[string]any{
		"baseCurrency": base,
		"rates":        rates,
		"timestamp":    models.NowMillis(),
		"source":       source,
	}, r.ratesTTL)
}

// LatestRates returns the freshest unexpired snapshot for base, or nil.
func (r *CurrencyRepository) LatestRates(base string) (*models.RateSnapshot, error) {
	recs, err := r.db.Find(tableRates, storage.Query{
		Where:          map[string]any{"baseCurrency": base},
		OrderBy:        "timestamp",
		OrderDirection: storage.Desc,
		Limit:          1,
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}

	d := recs[0].Data
	rates, _ := d["rates"].(map[string]float64)
	return &models.RateSnapshot{
		BaseCurrency: asString(d["baseCurrency"]),
		Rates:        rates,
		Timestamp:    asInt64(d["timestamp"]),
		Source:       asString(d["source"]),
	}, nil
}

// LogConversion appends a conversion history entry with the telemetry TTL.
func (r *CurrencyRepository) LogConversion(c models.Conversion) (string, error) {
	if c.Timestamp == 0 {
		c.Timestamp = models.NowMillis()
	}
	if c.UserAgent == "" {
		c.UserAgent = "unknown"
	}
	return r.db.Insert(tableHistory, map[string]any{
		"fromCurrency":    c.FromCurrency,
		"toCurrency":      c.ToCurrency,
		"amount":          c.Amount,
		"convertedAmount": c.ConvertedAmount,
		"rate":            c.Rate,
		"timestamp":       c.Timestamp,
		"userAgent":       c.UserAgent,
	}, r.telemetryTTL)
}

// ConversionHistory returns the most recent conversions, newest first.
// A non-positive limit returns up to 100 entries.
func (r *CurrencyRepository) ConversionHistory(limit int) ([]models.Conversion, error) {
	if limit <= 0 {
		limit = 100
	}
	recs, err := r.db.Find(tableHistory, storage.Query{
		OrderBy:        "timestamp",
		OrderDirection: storage.Desc,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Conversion, 0, len(recs))
	for _, rec := range recs {
		d := rec.Data
		out = append(out, models.Conversion{
			FromCurrency:    asString(d["fromCurrency"]),
			ToCurrency:      asString(d["toCurrency"]),
			Amount:          asFloat(d["amount"]),
			ConvertedAmount: asFloat(d["convertedAmount"]),
			Rate:            asFloat(d["rate"]),
			Timestamp:       asInt64(d["timestamp"]),
			UserAgent:       asString(d["userAgent"]),
		})
	}
	return out, nil
}

// SaveCurrencyMetadata stores display metadata. Metadata never expires.
func (r *CurrencyRepository) SaveCurrencyMetadata(currencies []models.CurrencyMetadata) error {
	for _, c := range currencies {
		_, err := r.db.Insert(tableMetadata, map[string]any{
			"code":     c.Code,
			"name":     c.Name,
			"symbol":   c.Symbol,
			"country":  c.Country,
			"isActive": c.IsActive,
		}, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// CurrencyMetadata returns metadata for an active currency code, or nil.
func (r *CurrencyRepository) CurrencyMetadata(code string) (*models.CurrencyMetadata, error) {
	recs, err := r.db.Find(tableMetadata, storage.Query{
		Where: map[string]any{"code": code, "isActive": true},
		Limit: 1,
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}

	d := recs[0].Data
	return &models.CurrencyMetadata{
		Code:     asString(d["code"]),
		Name:     asString(d["name"]),
		Symbol:   asString(d["symbol"]),
		Country:  asString(d["country"]),
		IsActive: true,
	}, nil
}

// LogAPIUsage appends one request telemetry entry with the telemetry TTL.
func (r *CurrencyRepository) LogAPIUsage(u models.APIUsage) (string, error) {
	if u.Timestamp == 0 {
		u.Timestamp = models.NowMillis()
	}
	if u.UserAgent == "" {
		u.UserAgent = "unknown"
	}
	return r.db.Insert(tableUsage, map[string]any{
		"endpoint":     u.Endpoint,
		"method":       u.Method,
		"responseTime": u.ResponseTime,
		"statusCode":   u.StatusCode,
		"timestamp":    u.Timestamp,
		"userAgent":    u.UserAgent,
	}, r.telemetryTTL)
}

// APIStats aggregates usage records with timestamp after now-hours. An empty
// window yields zero totals and a zero mean.
func (r *CurrencyRepository) APIStats(hours int) (models.APIStats, error) {
	stats := models.APIStats{
		StatusCodes:     make(map[int]int),
		Endpoints:       make(map[string]int),
		HourlyBreakdown: make(map[int]int),
	}

	recs, err := r.db.Find(tableUsage, storage.Query{
		OrderBy:        "timestamp",
		OrderDirection: storage.Desc,
	})
	if err != nil {
		return stats, err
	}

	cutoff := models.NowMillis() - int64(hours)*3600000
	var totalLatency int64
	for _, rec := range recs {
		d := rec.Data
		ts := asInt64(d["timestamp"])
		if ts <= cutoff {
			continue
		}
		stats.TotalRequests++
		totalLatency += asInt64(d["responseTime"])
		stats.StatusCodes[int(asInt64(d["statusCode"]))]++
		stats.Endpoints[asString(d["endpoint"])]++
		stats.HourlyBreakdown[time.UnixMilli(ts).Hour()]++
	}

	if stats.TotalRequests > 0 {
		mean := float64(totalLatency) / float64(stats.TotalRequests)
		stats.AverageResponseTime = math.Round(mean*100) / 100
	}
	return stats, nil
}

// Cleanup sweeps expired records from every table.
func (r *CurrencyRepository) Cleanup() int {
	n := r.db.CleanupExpired()
	if n > 0 {
		r.log.Infow("expired records evicted", "count", n)
	}
	return n
}

// Stats returns diagnostics for every domain table.
func (r *CurrencyRepository) Stats() ([]storage.TableStats, error) {
	var out []storage.TableStats
	for _, table := range r.db.ListTables() {
		st, err := r.db.Stats(table)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
