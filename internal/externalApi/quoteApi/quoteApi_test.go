package quoteApi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/internal/externalApi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApi(serverURL string) *QuoteApi {
	cfg := &config.Config{
		API: config.API{
			Timeout: 2 * time.Second,
			QuoteApi: config.QuoteApi{
				Url: serverURL,
				Key: "test-token",
			},
		},
	}
	return New(cfg)
}

func TestGetQuote(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"NET","companyName":"Cloudflare, Inc.","latestPrice":27.35}`))
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	quote, err := api.GetQuote(context.Background(), "net")
	require.NoError(t, err)

	assert.Equal(t, "/stock/NET/quote", gotPath)
	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "NET", quote.Symbol)
	assert.Equal(t, "Cloudflare, Inc.", quote.Name)
	assert.True(t, quote.Price.Equal(decimal.NewFromFloat(27.35)))
}

func TestGetQuote_UnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)
}

func TestGetQuote_EmptyBodySymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "NET")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)
}

func TestGetQuote_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "NET")
	require.Error(t, err)
	assert.NotErrorIs(t, err, externalApi.ErrNotFound)
}
