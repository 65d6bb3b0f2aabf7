package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbilibin2017/currency-converter/internal/facades"
	"github.com/sbilibin2017/currency-converter/internal/handlers"
)

type fakeUsageReader struct {
	usage *facades.ProviderUsage
	err   error
}

func (f *fakeUsageReader) Usage(context.Context) (*facades.ProviderUsage, error) {
	return f.usage, f.err
}

func TestProviderUsageHandler(t *testing.T) {
	usage := &facades.ProviderUsage{}
	usage.Plan.Name = "Free"
	usage.Usage.RequestsRemaining = 958

	handler := handlers.NewProviderUsageHandler(&fakeUsageReader{usage: usage})
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp handlers.ProviderUsageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Free", resp.Data.Plan.Name)
	assert.Equal(t, 958, resp.Data.Usage.RequestsRemaining)
}

func TestProviderUsageHandler_Unavailable(t *testing.T) {
	handler := handlers.NewProviderUsageHandler(&fakeUsageReader{err: &facades.ProviderError{Status: 503}})
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
