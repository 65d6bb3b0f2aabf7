package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sbilibin2017/currency-converter/internal/cache"
	"github.com/sbilibin2017/currency-converter/internal/facades"
	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/retry"
)

var testRates = map[string]float64{"EUR": 0.8677, "GBP": 0.7534}

// fastRetry keeps backoff waits negligible in tests.
func fastRetry() retry.Options {
	return retry.Options{
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
		Rand:      func() float64 { return 0 },
	}
}

func newTestService(t *testing.T) (*ConversionService, *MockRatesProvider, *MockConversionStore, *cache.Cache[models.RatesResponse]) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := NewMockRatesProvider(ctrl)
	store := NewMockConversionStore(ctrl)
	c := cache.New[models.RatesResponse](time.Hour)

	svc := NewConversionService(provider, c, store, nil, fastRetry(), zap.NewNop().Sugar())
	return svc, provider, store, c
}

func cachedRates(c *cache.Cache[models.RatesResponse], ttl time.Duration) models.RatesResponse {
	resp := models.RatesResponse{
		Rates:        testRates,
		Timestamp:    models.NowMillis(),
		BaseCurrency: models.BaseCurrency,
	}
	c.Set(cacheKeyLatestRates, resp, ttl)
	return resp
}

func TestConvert_SameCurrencyIdentity(t *testing.T) {
	svc, _, store, c := newTestService(t)
	cachedRates(c, time.Hour)
	store.EXPECT().LogConversion(gomock.Any()).Return("id", nil)

	// Provider has no expectations: any upstream call fails the test.
	res, err := svc.Convert(context.Background(), "eur", "EUR", 123.45, "test-agent")
	require.NoError(t, err)
	assert.Equal(t, 123.45, res.ConvertedAmount)
	assert.Equal(t, float64(1), res.RateUsed)
	assert.Equal(t, "EUR", res.FromCurrency)
	assert.Equal(t, "EUR", res.ToCurrency)
}

func TestConvert_ConcreteScenario(t *testing.T) {
	tests := []struct {
		name          string
		from, to      string
		amount        float64
		wantRate      float64
		wantConverted float64
	}{
		{"base_to_eur", "USD", "EUR", 100, 0.8677, 86.77},
		{"eur_to_base", "EUR", "USD", 100, 1.1525, 115.25},
		{"cross_eur_gbp", "EUR", "GBP", 100, 0.8683, 86.83},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, store, c := newTestService(t)
			cachedRates(c, time.Hour)

			var logged models.Conversion
			store.EXPECT().LogConversion(gomock.Any()).DoAndReturn(func(c models.Conversion) (string, error) {
				logged = c
				return "id", nil
			})

			res, err := svc.Convert(context.Background(), tt.from, tt.to, tt.amount, "ua")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRate, res.RateUsed)
			assert.Equal(t, tt.wantConverted, res.ConvertedAmount)
			assert.Equal(t, models.BaseCurrency, res.BaseCurrency)
			assert.Equal(t, tt.amount, res.OriginalAmount)

			assert.Equal(t, tt.wantRate, logged.Rate)
			assert.Equal(t, "ua", logged.UserAgent)
		})
	}
}

func TestConvert_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		amount   float64
	}{
		{"zero_amount", "USD", "EUR", 0},
		{"negative_amount", "USD", "EUR", -5},
		{"empty_from", "", "EUR", 100},
		{"empty_to", "USD", "", 100},
		{"blank_from", "   ", "EUR", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, c := newTestService(t)
			cachedRates(c, time.Hour)

			_, err := svc.Convert(context.Background(), tt.from, tt.to, tt.amount, "")
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestConvert_UnsupportedCurrency(t *testing.T) {
	svc, _, _, c := newTestService(t)
	cachedRates(c, time.Hour)

	_, err := svc.Convert(context.Background(), "USD", "XYZ", 100, "")
	var unsupported *UnsupportedCurrencyError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "XYZ", unsupported.Code)

	_, err = svc.Convert(context.Background(), "XYZ", "USD", 100, "")
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "XYZ", unsupported.Code)
}

func TestRates_CacheHitAvoidsUpstream(t *testing.T) {
	svc, _, _, c := newTestService(t)
	want := cachedRates(c, time.Hour)

	got, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRates_FetchCachesAndStoresSnapshot(t *testing.T) {
	svc, provider, store, _ := newTestService(t)

	provider.EXPECT().LatestRates(gomock.Any()).Return(testRates, nil).Times(1)
	store.EXPECT().SaveRates(models.BaseCurrency, testRates, "").Return("id", nil).Times(1)

	got, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRates, got.Rates)
	assert.Equal(t, models.BaseCurrency, got.BaseCurrency)
	assert.NotZero(t, got.Timestamp)

	// Second call is served from cache: Times(1) above enforces no refetch.
	again, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRates_RetryThenSuccess(t *testing.T) {
	svc, provider, store, _ := newTestService(t)

	unavailable := &facades.ProviderError{Status: 503}
	gomock.InOrder(
		provider.EXPECT().LatestRates(gomock.Any()).Return(nil, unavailable),
		provider.EXPECT().LatestRates(gomock.Any()).Return(nil, unavailable),
		provider.EXPECT().LatestRates(gomock.Any()).Return(testRates, nil),
	)
	store.EXPECT().SaveRates(gomock.Any(), gomock.Any(), gomock.Any()).Return("id", nil)

	got, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRates, got.Rates)
}

func TestRates_ExhaustionUsesStaleFallback(t *testing.T) {
	svc, provider, _, c := newTestService(t)

	want := cachedRates(c, time.Nanosecond)
	time.Sleep(time.Millisecond) // let the entry expire

	provider.EXPECT().LatestRates(gomock.Any()).
		Return(nil, &facades.ProviderError{Status: 503}).Times(3)

	got, err := svc.Rates(context.Background())
	require.NoError(t, err, "stale snapshot is preferred over failing")
	assert.Equal(t, want, got)
}

func TestRates_ExhaustionWithoutFallbackPropagates(t *testing.T) {
	svc, provider, _, _ := newTestService(t)

	unavailable := &facades.ProviderError{Status: 502}
	provider.EXPECT().LatestRates(gomock.Any()).Return(nil, unavailable).Times(3)

	_, err := svc.Rates(context.Background())
	assert.ErrorIs(t, err, facades.ErrUnavailable)
}

func TestRates_NonRetriableFailsFast(t *testing.T) {
	svc, provider, _, _ := newTestService(t)

	provider.EXPECT().LatestRates(gomock.Any()).
		Return(nil, &facades.ProviderError{Status: 401}).Times(1)

	_, err := svc.Rates(context.Background())
	assert.ErrorIs(t, err, facades.ErrUnauthorized)
}

type flakyNetwork struct {
	online bool
	waited bool
}

func (n *flakyNetwork) Online() bool { return n.online }

func (n *flakyNetwork) WaitOnline(ctx context.Context) error {
	n.waited = true
	n.online = true
	return ctx.Err()
}

func TestRates_WaitsForConnectivity(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := NewMockRatesProvider(ctrl)
	store := NewMockConversionStore(ctrl)
	network := &flakyNetwork{online: false}

	svc := NewConversionService(provider, cache.New[models.RatesResponse](time.Hour),
		store, network, fastRetry(), zap.NewNop().Sugar())

	provider.EXPECT().LatestRates(gomock.Any()).Return(testRates, nil)
	store.EXPECT().SaveRates(gomock.Any(), gomock.Any(), gomock.Any()).Return("id", nil)

	_, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.True(t, network.waited, "offline gate suspends until online")
}

func TestSupportedCurrencies(t *testing.T) {
	svc, _, _, c := newTestService(t)
	cachedRates(c, time.Hour)

	currencies, err := svc.SupportedCurrencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "GBP", "USD"}, currencies)
}

func TestIsValidCurrencyCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"USD", true},
		{"EUR", true},
		{"usd", false},
		{"US", false},
		{"USDX", false},
		{"U1D", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidCurrencyCode(tt.code), "code %q", tt.code)
	}
}
