package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itchyny/gojq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

// run executes the CLI against server and returns what it wrote to stdout.
func run(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	argv := append([]string{"solboard", "--server-url", server.URL}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func jsonHandler(t *testing.T, method, path string, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, method, r.Method)
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := run(t, server, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Server is healthy")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := run(t, server, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	commit = "abc123"
	date = "2025-10-10"

	server := httptest.NewServer(jsonHandler(t, "GET", "/version", map[string]string{"version": "v0.3.0", "commit": "feedbeef"}))
	defer server.Close()

	out, err := run(t, server, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1.0.0")
	assert.Contains(t, out, "Version: v0.3.0")

	out, err = run(t, server, "--jq", ".server.commit", "server", "version")
	require.NoError(t, err)
	assert.Equal(t, "feedbeef\n", out)
}

func TestSessionConnectCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testAddress, req["address"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"connected": true,
			"address":   testAddress,
			"wallet":    "watch-only",
			"balance":   map[string]any{"known": false, "display": "Fetching..."},
			"warning":   "Failed to fetch balance",
		})
	}))
	defer server.Close()

	out, err := run(t, server, "session", "connect", testAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Connected")
	assert.Contains(t, out, "Balance:      Fetching...")
	assert.Contains(t, out, "Warning:      Failed to fetch balance")
}

func TestSessionShowCommand_NotConnected(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "GET", "/api/v1/session", map[string]any{"connected": false}))
	defer server.Close()

	out, err := run(t, server, "session", "show")
	require.NoError(t, err)
	assert.Equal(t, "Not connected\n", out)
}

func TestBalanceCommand_JSON(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "GET", "/api/v1/balance", map[string]any{
		"known": true, "lamports": 1234500000, "sol": "1.2345", "display": "1.2345 SOL",
	}))
	defer server.Close()

	out, err := run(t, server, "--json", "balance")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "1.2345", result["sol"])
	assert.Equal(t, true, result["known"])
}

func TestBalanceCommand_NotConnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "Please connect your wallet first"})
	}))
	defer server.Close()

	_, err := run(t, server, "balance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please connect your wallet first")
}

func TestTokensCommand(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "GET", "/api/v1/tokens", map[string]any{
		"tokens": []map[string]any{
			{"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "name": "USD Coin", "symbol": "USDC", "ui_amount": "12.5", "listed": true},
			{"mint": "mintB", "name": "Unknown Token", "symbol": "UNKNOWN", "ui_amount": "1"},
		},
	}))
	defer server.Close()

	out, err := run(t, server, "tokens")
	require.NoError(t, err)
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "USDC")
	assert.Contains(t, out, "Unknown Token")

	out, err = run(t, server, "--jq", ".[] | select(.listed) | .symbol", "tokens")
	require.NoError(t, err)
	assert.Equal(t, "USDC\n", out)
}

func TestActivityMoreCommand(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "POST", "/api/v1/activity/more", map[string]any{
		"entries": []map[string]any{
			{"signature": testSignature, "slot": 42, "fee": "0.000005", "status": "success"},
			{"signature": "sig2", "slot": 41, "fee": "N/A", "status": "failed"},
		},
		"exhausted": true,
	}))
	defer server.Close()

	out, err := run(t, server, "activity", "more")
	require.NoError(t, err)
	assert.Contains(t, out, "Signature:  5VER...kQUW")
	assert.Contains(t, out, "Fee:        N/A")
	assert.Contains(t, out, "(no more transactions)")
}

func TestActivityResetCommand(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "POST", "/api/v1/activity/reset", map[string]any{"entries": []any{}, "exhausted": false}))
	defer server.Close()

	out, err := run(t, server, "--jq", ".exhausted", "activity", "reset")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func TestMessageVerifyCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/message/verify", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "edited", req["message"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"state": "verification_failed", "status": "Signature is invalid", "valid": false,
		})
	}))
	defer server.Close()

	out, err := run(t, server, "message", "verify", "edited")
	require.NoError(t, err)
	assert.Contains(t, out, "State:     verification_failed")
}

func TestMessageSignCommand_RequiresMessage(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := run(t, server, "message", "sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message is required")
}

func TestTransferCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testAddress, req["recipient"])
		assert.Equal(t, "0.1", req["amount"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"signature": testSignature, "lamports": 100000000, "amount": "0.1",
			"status": "Transaction confirmed!\nSignature: " + testSignature,
		})
	}))
	defer server.Close()

	out, err := run(t, server, "transfer", testAddress, "0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Transaction confirmed")
	assert.Contains(t, out, "Amount:    0.1 SOL")

	_, err = run(t, server, "transfer", testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient and amount are required")
}

func TestAirdropCommand_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Please enter a valid amount between 0 and 2 SOL."})
	}))
	defer server.Close()

	_, err := run(t, server, "airdrop", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 0 and 2 SOL")
}

func TestStreamCommand_FiltersEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/activity", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", testAddress)
		fmt.Fprintf(w, "event: airdrop\ndata: {\"kind\":\"airdrop\",\"outcome\":\"confirmed\",\"amount\":\"1\",\"wallet_address\":%q}\n\n", testAddress)
		fmt.Fprintf(w, "event: transfer\ndata: {\"kind\":\"transfer\",\"outcome\":\"failed\",\"amount\":\"0.2\",\"wallet_address\":%q}\n\n", testAddress)
	}))
	defer server.Close()

	out, err := run(t, server, "--json", "stream", "--must-jq", `.outcome == "failed"`, testAddress)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"kind":"transfer"`)
}

func TestStreamCommand_BadFilter(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := run(t, server, "stream", "--must-jq", ".[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestMatchesAll(t *testing.T) {
	code, err := compileJQ(`.lamports > 50`)
	require.NoError(t, err)

	assert.True(t, matchesAll(nil, map[string]any{}))
	assert.True(t, matchesAll([]*gojq.Code{code}, map[string]any{"lamports": 100}))
	assert.False(t, matchesAll([]*gojq.Code{code}, map[string]any{"lamports": 10}))
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
}

func TestShortSignature(t *testing.T) {
	assert.Equal(t, "5VER...kQUW", shortSignature(testSignature))
	assert.Equal(t, "short", shortSignature("short"))
}
