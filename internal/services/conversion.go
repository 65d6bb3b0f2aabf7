package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sbilibin2017/currency-converter/internal/cache"
	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/retry"
)

const (
	cacheKeyLatestRates = "latest_rates"

	// ratesCacheTTL is the freshness window for fetched rates.
	ratesCacheTTL = time.Hour
)

var (
	// ErrInvalidInput rejects empty currency codes and non-positive amounts.
	ErrInvalidInput = errors.New("invalid input parameters for currency conversion")

	currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// UnsupportedCurrencyError reports a well-formed code absent from the
// current rates snapshot.
type UnsupportedCurrencyError struct {
	Code string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("currency %q is not supported or available", e.Code)
}

// RatesProvider fetches the latest rates mapping from the upstream provider.
type RatesProvider interface {
	LatestRates(ctx context.Context) (map[string]float64, error)
}

// ConversionStore persists rate snapshots and conversion telemetry.
type ConversionStore interface {
	SaveRates(base string, rates map[string]float64, source string) (string, error)
	LogConversion(c models.Conversion) (string, error)
}

// ConversionService is the rate-caching and conversion engine: it decides
// when to trust cached rates versus fetch fresh ones, retries failed
// fetches, performs cross-rate arithmetic and records telemetry.
type ConversionService struct {
	provider  RatesProvider
	cache     *cache.Cache[models.RatesResponse]
	store     ConversionStore
	network   retry.Network
	retryOpts retry.Options
	log       *zap.SugaredLogger
}

// NewConversionService wires the engine. A nil network defaults to
// AlwaysOnline; zero retryOpts fields take the retry package defaults.
func NewConversionService(
	provider RatesProvider,
	c *cache.Cache[models.RatesResponse],
	store ConversionStore,
	network retry.Network,
	retryOpts retry.Options,
	log *zap.SugaredLogger,
) *ConversionService {
	if network == nil {
		network = retry.AlwaysOnline()
	}
	if retryOpts.Network == nil {
		retryOpts.Network = network
	}
	return &ConversionService{
		provider:  provider,
		cache:     c,
		store:     store,
		network:   network,
		retryOpts: retryOpts,
		log:       log,
	}
}

// Rates returns the current rates snapshot. A fresh cached snapshot is
// returned without touching the upstream; on a miss the fetch runs behind
// the retry executor and the result is written through to the cache. When
// retries are exhausted an expired cached snapshot, if any, is returned as
// a last resort.
func (svc *ConversionService) Rates(ctx context.Context) (models.RatesResponse, error) {
	// Capture any stale snapshot before the fresh read: Get evicts an
	// expired entry, and the fallback below still needs it.
	stale, hasStale := svc.cache.GetStale(cacheKeyLatestRates)

	if cached, ok := svc.cache.Get(cacheKeyLatestRates); ok {
		svc.log.Debug("using cached exchange rates")
		return cached, nil
	}

	if !svc.network.Online() {
		svc.log.Warn("device is offline, waiting for connection")
		if err := svc.network.WaitOnline(ctx); err != nil {
			return models.RatesResponse{}, err
		}
	}

	res := retry.Do(ctx, svc.provider.LatestRates, svc.retryOpts)
	if !res.Success {
		svc.log.Errorw("failed to fetch rates after retries",
			"attempts", res.Attempts, "error", res.Err)

		if hasStale {
			svc.log.Warn("using stale cached rates as fallback")
			return stale, nil
		}
		return models.RatesResponse{}, res.Err
	}

	resp := models.RatesResponse{
		Rates:        res.Value,
		Timestamp:    models.NowMillis(),
		BaseCurrency: models.BaseCurrency,
	}
	svc.cache.Set(cacheKeyLatestRates, resp, ratesCacheTTL)

	if _, err := svc.store.SaveRates(resp.BaseCurrency, resp.Rates, ""); err != nil {
		svc.log.Errorw("failed to store rates snapshot", "error", err)
	}

	svc.log.Infow("fetched fresh exchange rates", "attempts", res.Attempts)
	return resp, nil
}

// Convert converts amount from one currency to another using the current
// snapshot. Both rate and converted amount are rounded to 4 decimal places,
// half away from zero. The completed conversion is recorded in the domain
// store; userAgent is the opaque client identifier carried on the record.
func (svc *ConversionService) Convert(ctx context.Context, from, to string, amount float64, userAgent string) (models.ConversionResult, error) {
	var zero models.ConversionResult

	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return zero, ErrInvalidInput
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return zero, ErrInvalidInput
	}

	fromCurrency := strings.ToUpper(from)
	toCurrency := strings.ToUpper(to)

	ratesData, err := svc.Rates(ctx)
	if err != nil {
		return zero, err
	}
	rates := ratesData.Rates
	base := ratesData.BaseCurrency

	if fromCurrency != base {
		if _, ok := rates[fromCurrency]; !ok {
			return zero, &UnsupportedCurrencyError{Code: fromCurrency}
		}
	}
	if toCurrency != base {
		if _, ok := rates[toCurrency]; !ok {
			return zero, &UnsupportedCurrencyError{Code: toCurrency}
		}
	}

	result := models.ConversionResult{
		OriginalAmount: amount,
		FromCurrency:   fromCurrency,
		ToCurrency:     toCurrency,
		Timestamp:      ratesData.Timestamp,
		BaseCurrency:   base,
	}

	if fromCurrency == toCurrency {
		// Exact passthrough, no arithmetic.
		result.ConvertedAmount = amount
		result.RateUsed = 1
	} else {
		var rate float64
		switch {
		case fromCurrency == base:
			rate = rates[toCurrency]
		case toCurrency == base:
			rate = 1 / rates[fromCurrency]
		default:
			rate = rates[toCurrency] / rates[fromCurrency]
		}
		result.RateUsed = round4(rate)
		result.ConvertedAmount = round4(amount * result.RateUsed)
	}

	if _, err := svc.store.LogConversion(models.Conversion{
		FromCurrency:    result.FromCurrency,
		ToCurrency:      result.ToCurrency,
		Amount:          result.OriginalAmount,
		ConvertedAmount: result.ConvertedAmount,
		Rate:            result.RateUsed,
		UserAgent:       userAgent,
	}); err != nil {
		svc.log.Errorw("failed to log conversion", "error", err)
	}

	return result, nil
}

// SupportedCurrencies returns the base currency plus every code in the
// current snapshot, lexicographically sorted.
func (svc *ConversionService) SupportedCurrencies(ctx context.Context) ([]string, error) {
	ratesData, err := svc.Rates(ctx)
	if err != nil {
		return nil, err
	}

	currencies := make([]string, 0, len(ratesData.Rates)+1)
	currencies = append(currencies, ratesData.BaseCurrency)
	for code := range ratesData.Rates {
		currencies = append(currencies, code)
	}
	sort.Strings(currencies)
	return currencies, nil
}

// IsValidCurrencyCode reports whether code is exactly 3 uppercase ASCII
// letters. Format check only, no existence check against live rates.
func IsValidCurrencyCode(code string) bool {
	return currencyCodeRe.MatchString(code)
}

// round4 rounds to 4 decimal places, half away from zero on the scaled value.
func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
