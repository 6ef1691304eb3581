package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Capabilities reports what the connected wallet can do.
type Capabilities struct {
	SignMessage     bool `json:"sign_message"`
	SendTransaction bool `json:"send_transaction"`
}

// Balance is the SOL balance of the connected account. Lamports is nil
// while the balance is unknown.
type Balance struct {
	Known    bool    `json:"known"`
	Lamports *uint64 `json:"lamports,omitempty"`
	SOL      string  `json:"sol,omitempty"`
	Display  string  `json:"display"`
}

// Session is the dashboard's current identity.
type Session struct {
	Connected    bool         `json:"connected"`
	Address      string       `json:"address,omitempty"`
	Wallet       string       `json:"wallet,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Balance      Balance      `json:"balance"`
	Generation   uint64       `json:"generation"`
	Warning      string       `json:"warning,omitempty"`
}

// Token is one token holding joined with its catalog metadata.
type Token struct {
	Mint     string `json:"mint"`
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	LogoURI  string `json:"logo_uri"`
	Listed   bool   `json:"listed"`
}

// TransferDetail is a native SOL transfer found in a transaction.
type TransferDetail struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`
}

// Transaction is one entry of the activity feed. Fee is "N/A" when the
// transaction detail could not be fetched.
type Transaction struct {
	Signature   string          `json:"signature"`
	Slot        uint64          `json:"slot"`
	BlockTime   *time.Time      `json:"block_time,omitempty"`
	Fee         string          `json:"fee"`
	FeeLamports *uint64         `json:"fee_lamports,omitempty"`
	Status      string          `json:"status"`
	Memo        *string         `json:"memo,omitempty"`
	Transfer    *TransferDetail `json:"transfer,omitempty"`
}

// Activity is the accumulated activity feed.
type Activity struct {
	Owner     string        `json:"owner"`
	Items     []Transaction `json:"items"`
	Exhausted bool          `json:"exhausted"`
	Loading   bool          `json:"loading"`
}

// Page is the set of entries appended by one load.
type Page struct {
	Entries   []Transaction `json:"entries"`
	Exhausted bool          `json:"exhausted"`
}

// MessageState is the sign/verify state. Valid is set only by Verify.
type MessageState struct {
	State     string `json:"state"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Signature string `json:"signature,omitempty"`
	Valid     *bool  `json:"valid,omitempty"`
}

// FundsResult is the outcome of an airdrop or transfer.
type FundsResult struct {
	Signature string `json:"signature,omitempty"`
	Lamports  uint64 `json:"lamports"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

// Notice is the transient transfer status message.
type Notice struct {
	Visible bool      `json:"visible"`
	Status  string    `json:"status,omitempty"`
	ShownAt time.Time `json:"shown_at,omitzero"`
}

// ActivityEvent is an airdrop or transfer outcome delivered over the stream.
type ActivityEvent struct {
	Kind          string    `json:"kind"`
	Outcome       string    `json:"outcome"`
	Signature     string    `json:"signature,omitempty"`
	WalletAddress string    `json:"wallet_address"`
	Counterparty  *string   `json:"counterparty,omitempty"`
	Lamports      uint64    `json:"lamports"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	PublishedAt   time.Time `json:"published_at"`
}

// Version is the server build information.
type Version struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}

// Client is the HTTP client for the solboard dashboard server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Session returns the current identity.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Connect connects a watch-only address, or the server's keypair when
// address is empty. A balance failure is reported in Session.Warning.
func (c *Client) Connect(ctx context.Context, address string) (*Session, error) {
	var body any
	if address != "" {
		body = map[string]string{"address": address}
	}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/session", body, &s); err != nil {
		return nil, err
	}
	c.logger.Debug("connected", "address", s.Address, "wallet", s.Wallet)
	return &s, nil
}

// Disconnect clears the current identity.
func (c *Client) Disconnect(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodDelete, "/api/v1/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Balance refreshes and returns the SOL balance.
func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	var b Balance
	if err := c.do(ctx, http.MethodGet, "/api/v1/balance", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Tokens refreshes and returns the token holdings.
func (c *Client) Tokens(ctx context.Context) ([]Token, error) {
	var resp struct {
		Tokens []Token `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tokens", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// Activity returns the accumulated feed without fetching.
func (c *Client) Activity(ctx context.Context) (*Activity, error) {
	var a Activity
	if err := c.do(ctx, http.MethodGet, "/api/v1/activity", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadMore fetches the next page of activity.
func (c *Client) LoadMore(ctx context.Context) (*Page, error) {
	var p Page
	if err := c.do(ctx, http.MethodPost, "/api/v1/activity/more", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResetActivity clears the feed and fetches the first page again.
func (c *Client) ResetActivity(ctx context.Context) (*Page, error) {
	var p Page
	if err := c.do(ctx, http.MethodPost, "/api/v1/activity/reset", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MessageState returns the sign/verify state.
func (c *Client) MessageState(ctx context.Context) (*MessageState, error) {
	var m MessageState
	if err := c.do(ctx, http.MethodGet, "/api/v1/message", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Sign signs message with the connected wallet.
func (c *Client) Sign(ctx context.Context, message string) (*MessageState, error) {
	var m MessageState
	if err := c.do(ctx, http.MethodPost, "/api/v1/message/sign", map[string]string{"message": message}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Verify checks the stored signature against message, or against the
// signed message when message is nil.
func (c *Client) Verify(ctx context.Context, message *string) (*MessageState, error) {
	var body any
	if message != nil {
		body = map[string]string{"message": *message}
	}
	var m MessageState
	if err := c.do(ctx, http.MethodPost, "/api/v1/message/verify", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Airdrop requests amount SOL from the faucet for the connected wallet.
func (c *Client) Airdrop(ctx context.Context, amount string) (*FundsResult, error) {
	var r FundsResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/airdrop", map[string]string{"amount": amount}, &r); err != nil {
		return nil, err
	}
	c.logger.Debug("airdrop complete", "amount", amount, "signature", r.Signature)
	return &r, nil
}

// Transfer sends amount SOL from the connected wallet to recipient.
func (c *Client) Transfer(ctx context.Context, recipient, amount string) (*FundsResult, error) {
	body := map[string]string{
		"recipient": recipient,
		"amount":    amount,
	}
	var r FundsResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfer", body, &r); err != nil {
		return nil, err
	}
	c.logger.Debug("transfer complete", "recipient", recipient, "amount", amount, "signature", r.Signature)
	return &r, nil
}

// Notice returns the transfer notice.
func (c *Client) Notice(ctx context.Context) (*Notice, error) {
	var n Notice
	if err := c.do(ctx, http.MethodGet, "/api/v1/transfer/notice", nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Version returns the server build information.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// StreamActivity subscribes to activity events for address, or for the
// connected account when address is empty. It blocks until ctx is done or
// the stream ends, calling handler for each event. A handler error stops
// the stream.
func (c *Client) StreamActivity(ctx context.Context, address string, handler func(*ActivityEvent) error) error {
	u := c.baseURL + "/api/v1/stream/activity"
	if address != "" {
		u += "?address=" + url.QueryEscape(address)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout for streaming
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line ends an event
		if line == "" {
			if err := c.dispatch(currentEvent, currentData, handler); err != nil {
				return err
			}
			currentEvent, currentData = "", ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading stream: %w", err)
	}
	return nil
}

func (c *Client) dispatch(event, data string, handler func(*ActivityEvent) error) error {
	if event == "" || data == "" {
		return nil
	}
	switch event {
	case "connected":
		c.logger.Debug("stream connected", "data", data)
		return nil
	case "error":
		var errInfo struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return fmt.Errorf("failed to decode stream error: %w", err)
		}
		return fmt.Errorf("server error: %s", errInfo.Error)
	default:
		var ev ActivityEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn("failed to decode activity event", "event", event, "error", err)
			return nil
		}
		return handler(&ev)
	}
}

// do sends a JSON request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
