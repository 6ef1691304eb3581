package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultQuery = ".tokens[] | {address, name, symbol, logoURI, decimals}"

const tokenListJSON = `{
  "name": "Solana Token List",
  "tokens": [
    {"chainId": 101, "address": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "symbol": "USDC", "name": "USD Coin", "decimals": 6, "logoURI": "https://example.com/usdc.png"},
    {"chainId": 101, "address": "So11111111111111111111111111111111111111112", "symbol": "SOL", "name": "Wrapped SOL", "decimals": 9, "logoURI": "https://example.com/sol.png"},
    {"chainId": 101, "address": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "symbol": "DUP", "name": "Duplicate", "decimals": 0}
  ]
}`

func newTestFetcher(t *testing.T, url, query string) *Fetcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f, err := NewFetcher(url, query, nil, nil, logger)
	require.NoError(t, err)
	return f
}

func TestFetch_IndexesByAddress(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokenListJSON))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, defaultQuery)

	idx, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, idx, 2)

	usdc, ok := idx.Lookup("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.True(t, ok)
	assert.Equal(t, "USD Coin", usdc.Name)
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, "https://example.com/usdc.png", usdc.LogoURI)
	require.NotNil(t, usdc.Decimals)
	assert.Equal(t, 6, *usdc.Decimals)

	_, ok = idx.Lookup("missing")
	assert.False(t, ok)

	// No caching between refreshes.
	_, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestFetch_CustomQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"mint": "Mint111", "ticker": "ABC", "title": "Alphabet"}]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, `.data[] | {address: .mint, symbol: .ticker, name: .title}`)

	idx, err := f.Fetch(context.Background())
	require.NoError(t, err)
	entry, ok := idx.Lookup("Mint111")
	require.True(t, ok)
	assert.Equal(t, "Alphabet", entry.Name)
	assert.Equal(t, "ABC", entry.Symbol)
	assert.Nil(t, entry.Decimals)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		query  string
	}{
		{"server error", http.StatusInternalServerError, "boom", defaultQuery},
		{"bad json", http.StatusOK, "{not json", defaultQuery},
		{"query runtime error", http.StatusOK, `{"tokens": 5}`, defaultQuery},
		{"non-object result", http.StatusOK, `{"tokens": [1]}`, ".tokens[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			idx, err := newTestFetcher(t, srv.URL, tt.query).Fetch(context.Background())
			assert.Error(t, err)
			assert.Nil(t, idx)
		})
	}
}

func TestNewFetcher_InvalidQuery(t *testing.T) {
	_, err := NewFetcher("http://example.com", ".tokens[", nil, nil, slog.Default())
	assert.Error(t, err)
}
