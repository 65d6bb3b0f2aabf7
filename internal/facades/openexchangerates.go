package facades

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://openexchangerates.org/api"

// OpenExchangeRatesFacade fetches exchange rates from the Open Exchange
// Rates HTTP API. The free plan expresses all rates against USD.
type OpenExchangeRatesFacade struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *zap.SugaredLogger
}

// NewOpenExchangeRatesFacade creates a facade. An empty baseURL uses the
// public API endpoint; an empty apiKey is a configuration error.
func NewOpenExchangeRatesFacade(baseURL, apiKey string, timeout time.Duration, log *zap.SugaredLogger) (*OpenExchangeRatesFacade, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenExchangeRatesFacade{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
	}, nil
}

type latestResponse struct {
	Disclaimer string             `json:"disclaimer"`
	License    string             `json:"license"`
	Timestamp  int64              `json:"timestamp"`
	Base       string             `json:"base"`
	Rates      map[string]float64 `json:"rates"`
}

type errorResponse struct {
	Error       bool   `json:"error"`
	Status      int    `json:"status"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// ProviderUsage is the provider-side quota report from usage.json.
type ProviderUsage struct {
	Plan struct {
		Name            string `json:"name"`
		Quota           string `json:"quota"`
		UpdateFrequency string `json:"update_frequency"`
	} `json:"plan"`
	Usage struct {
		Requests          int     `json:"requests"`
		RequestsQuota     int     `json:"requests_quota"`
		RequestsRemaining int     `json:"requests_remaining"`
		DaysElapsed       int     `json:"days_elapsed"`
		DaysRemaining     int     `json:"days_remaining"`
		DailyAverage      float64 `json:"daily_average"`
	} `json:"usage"`
}

type usageResponse struct {
	Status int           `json:"status"`
	Data   ProviderUsage `json:"data"`
}

// LatestRates fetches the current rates mapping relative to USD.
// Failures are classified: 401/403, 429 and 5xx unwrap to the package
// sentinels, network errors pass through as net errors, and an empty rates
// mapping is ErrMalformedResponse.
func (f *OpenExchangeRatesFacade) LatestRates(ctx context.Context) (map[string]float64, error) {
	var resp latestResponse
	if err := f.getJSON(ctx, "/latest.json", &resp); err != nil {
		f.log.Errorw("failed to fetch latest rates", "error", err)
		return nil, err
	}
	if len(resp.Rates) == 0 {
		f.log.Errorw("latest rates response has no rates")
		return nil, fmt.Errorf("%w: missing rates data", ErrMalformedResponse)
	}
	return resp.Rates, nil
}

// Currencies fetches the provider's currency code to display name mapping.
func (f *OpenExchangeRatesFacade) Currencies(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	if err := f.getJSON(ctx, "/currencies.json", &resp); err != nil {
		f.log.Errorw("failed to fetch currencies", "error", err)
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: missing currency list", ErrMalformedResponse)
	}
	return resp, nil
}

// Usage fetches the provider-side quota statistics.
func (f *OpenExchangeRatesFacade) Usage(ctx context.Context) (*ProviderUsage, error) {
	var resp usageResponse
	if err := f.getJSON(ctx, "/usage.json", &resp); err != nil {
		f.log.Errorw("failed to fetch provider usage", "error", err)
		return nil, err
	}
	return &resp.Data, nil
}

func (f *OpenExchangeRatesFacade) getJSON(ctx context.Context, path string, out any) error {
	u := fmt.Sprintf("%s%s?app_id=%s", f.baseURL, path, url.QueryEscape(f.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "currency-converter/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if errResp.Description != "" {
			msg = errResp.Description
		}
		return &ProviderError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
