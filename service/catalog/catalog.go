// Package catalog downloads token metadata from a static token-list document.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solboard/service/metrics"
	"github.com/itchyny/gojq"
)

// Entry is the metadata the dashboard shows for one mint.
type Entry struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	LogoURI  string `json:"logoURI"`
	Decimals *int   `json:"decimals,omitempty"`
}

// Index maps mint addresses to catalog entries.
type Index map[string]Entry

// Lookup returns the entry for mint, if the catalog has one.
func (i Index) Lookup(mint string) (Entry, bool) {
	e, ok := i[mint]
	return e, ok
}

// Fetcher downloads the token list. Every Fetch call hits the network;
// nothing is cached between refreshes.
type Fetcher struct {
	url        string
	code       *gojq.Code
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewFetcher compiles query, the jq expression that turns the downloaded
// document into a stream of entry objects.
// If httpClient is nil, a client with a 30 second timeout is used.
func NewFetcher(url, query string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*Fetcher, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token list query %q: %w", query, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile token list query %q: %w", query, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		url:        url,
		code:       code,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Fetch downloads and indexes the token list.
func (f *Fetcher) Fetch(ctx context.Context) (idx Index, err error) {
	if f.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			f.metrics.RecordCatalogFetch(d, err)
		})()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token list returned status %d: %s", resp.StatusCode, string(body))
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}

	idx, err = f.extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	f.logger.DebugContext(ctx, "fetched token list",
		"url", f.url,
		"entries", len(idx),
	)
	return idx, nil
}

func (f *Fetcher) extract(ctx context.Context, doc any) (Index, error) {
	idx := make(Index)
	iter := f.code.RunWithContext(ctx, doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("token list query failed: %w", err)
		}
		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, fmt.Errorf("token list query produced %T, want object", v)
		}

		entry := entryFromObject(obj)
		if entry.Address == "" {
			continue
		}
		// First occurrence wins, matching list order.
		if _, seen := idx[entry.Address]; !seen {
			idx[entry.Address] = entry
		}
	}
	return idx, nil
}

func entryFromObject(obj map[string]any) Entry {
	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}
	e := Entry{
		Address: str("address"),
		Name:    str("name"),
		Symbol:  str("symbol"),
		LogoURI: str("logoURI"),
	}
	switch d := obj["decimals"].(type) {
	case float64:
		n := int(d)
		e.Decimals = &n
	case int:
		e.Decimals = &d
	}
	return e
}
