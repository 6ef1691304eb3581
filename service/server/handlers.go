package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/solboard/service/activity"
	"github.com/brojonat/solboard/service/auth"
	"github.com/brojonat/solboard/service/dashboard"
	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/snapshot"
	"github.com/brojonat/solboard/service/transfer"
	"github.com/brojonat/solboard/service/wallet"
)

const (
	maxRequestBodySize = 64 << 10 // 64KB - messages and amounts are small
	maxAddressLength   = 100      // Solana addresses are 44 chars, give buffer
	maxMessageLength   = 4096
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

type balanceResponse struct {
	Known    bool    `json:"known"`
	Lamports *uint64 `json:"lamports,omitempty"`
	SOL      string  `json:"sol,omitempty"`
	Display  string  `json:"display"`
}

type sessionResponse struct {
	Connected    bool                `json:"connected"`
	Address      string              `json:"address,omitempty"`
	Wallet       string              `json:"wallet,omitempty"`
	Capabilities wallet.Capabilities `json:"capabilities"`
	Balance      balanceResponse     `json:"balance"`
	Generation   uint64              `json:"generation"`
	Warning      string              `json:"warning,omitempty"`
}

type holdingResponse struct {
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

type transferDetail struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`
}

type summaryResponse struct {
	Signature   string          `json:"signature"`
	Slot        uint64          `json:"slot"`
	BlockTime   *time.Time      `json:"block_time,omitempty"`
	Fee         string          `json:"fee"`
	FeeLamports *uint64         `json:"fee_lamports,omitempty"`
	Status      string          `json:"status"`
	Memo        *string         `json:"memo,omitempty"`
	Transfer    *transferDetail `json:"transfer,omitempty"`
}

type activityResponse struct {
	Owner     string            `json:"owner"`
	Items     []summaryResponse `json:"items"`
	Exhausted bool              `json:"exhausted"`
	Loading   bool              `json:"loading"`
}

type pageResponse struct {
	Entries   []summaryResponse `json:"entries"`
	Exhausted bool              `json:"exhausted"`
}

type messageResponse struct {
	State     string `json:"state"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Signature string `json:"signature,omitempty"`
	Valid     *bool  `json:"valid,omitempty"`
}

type fundsResponse struct {
	Signature string `json:"signature,omitempty"`
	Lamports  uint64 `json:"lamports"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

// handleGetSession returns the current identity.
// GET /api/v1/session
func handleGetSession(d *dashboard.Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sessionToResponse(d.Session()), http.StatusOK)
	})
}

// handleConnect connects a watch-only address, or the server keypair when
// no address is given.
// POST /api/v1/session
func handleConnect(d *dashboard.Dashboard, keypair wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address string `json:"address"`
		}
		if !decodeBody(w, r, &req, true, logger) {
			return
		}

		var target wallet.Wallet
		if req.Address == "" {
			if keypair == nil {
				writeError(w, "address is required: no keypair configured", http.StatusBadRequest)
				return
			}
			target = keypair
		} else {
			if err := validateAddress(req.Address); err != nil {
				logger.Debug("invalid address", "address", req.Address, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			watch, err := wallet.NewWatchOnly(req.Address)
			if err != nil {
				writeError(w, "invalid address: not a valid public key", http.StatusBadRequest)
				return
			}
			target = watch
		}

		session, err := d.Connect(r.Context(), target)
		if err != nil && session.Connected {
			resp := sessionToResponse(session)
			resp.Warning = errs.Message(err)
			writeJSON(w, resp, http.StatusOK)
			return
		}
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, sessionToResponse(session), http.StatusOK)
	})
}

// handleDisconnect clears the current identity.
// DELETE /api/v1/session
func handleDisconnect(d *dashboard.Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sessionToResponse(d.Disconnect()), http.StatusOK)
	})
}

// handleBalance refreshes and returns the balance.
// GET /api/v1/balance
func handleBalance(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bal, err := d.RefreshBalance(r.Context())
		if err != nil {
			logger.DebugContext(r.Context(), "balance refresh failed", "error", err)
			writeKindError(w, err)
			return
		}
		writeJSON(w, balanceToResponse(bal), http.StatusOK)
	})
}

// handleTokens refreshes and returns the token holdings.
// GET /api/v1/tokens
func handleTokens(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holdings, err := d.RefreshHoldings(r.Context())
		if err != nil {
			logger.DebugContext(r.Context(), "holdings refresh failed", "error", err)
			writeKindError(w, err)
			return
		}

		resp := make([]holdingResponse, len(holdings))
		for i, h := range holdings {
			resp[i] = holdingToResponse(h)
		}
		writeJSON(w, map[string]interface{}{
			"tokens": resp,
		}, http.StatusOK)
	})
}

// handleActivity returns the accumulated feed without fetching.
// GET /api/v1/activity
func handleActivity(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, err := d.Activity()
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, activityResponse{
			Owner:     view.Owner,
			Items:     summariesToResponse(view.Items),
			Exhausted: view.Exhausted,
			Loading:   view.Loading,
		}, http.StatusOK)
	})
}

// handleActivityPage runs load and returns the entries it appended. An
// exhausted feed is a normal response.
// POST /api/v1/activity/more, POST /api/v1/activity/reset
func handleActivityPage(load func(context.Context) (activity.Page, error), logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := load(r.Context())
		if err != nil && !errors.Is(err, errs.ErrExhausted) {
			logger.DebugContext(r.Context(), "activity page failed", "error", err)
			writeKindError(w, err)
			return
		}
		writeJSON(w, pageResponse{
			Entries:   summariesToResponse(page.Entries),
			Exhausted: page.Exhausted,
		}, http.StatusOK)
	})
}

// handleMessageState returns the sign/verify state.
// GET /api/v1/message
func handleMessageState(d *dashboard.Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, messageToResponse(d.MessageState(), nil), http.StatusOK)
	})
}

// handleSign signs a message with the connected wallet.
// POST /api/v1/message/sign
func handleSign(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeBody(w, r, &req, false, logger) {
			return
		}
		if len(req.Message) > maxMessageLength {
			writeError(w, fmt.Sprintf("message too long: maximum length is %d bytes", maxMessageLength), http.StatusBadRequest)
			return
		}

		if _, err := d.SignMessage(r.Context(), req.Message); err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, messageToResponse(d.MessageState(), nil), http.StatusOK)
	})
}

// handleVerify checks the stored signature. A mismatch is reported with
// valid=false rather than an error status.
// POST /api/v1/message/verify
func handleVerify(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message *string `json:"message"`
		}
		if !decodeBody(w, r, &req, true, logger) {
			return
		}

		valid, err := d.VerifyMessage(req.Message)
		if err != nil && !errors.Is(err, errs.ErrVerificationMismatch) {
			writeKindError(w, err)
			return
		}
		writeJSON(w, messageToResponse(d.MessageState(), &valid), http.StatusOK)
	})
}

// handleAirdrop requests a faucet airdrop for the connected wallet.
// POST /api/v1/airdrop
func handleAirdrop(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount flexAmount `json:"amount"`
		}
		if !decodeBody(w, r, &req, false, logger) {
			return
		}

		res, err := d.Airdrop(r.Context(), string(req.Amount))
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, fundsToResponse(res), http.StatusOK)
	})
}

// handleTransfer sends SOL from the connected wallet.
// POST /api/v1/transfer
func handleTransfer(d *dashboard.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Recipient string     `json:"recipient"`
			Amount    flexAmount `json:"amount"`
		}
		if !decodeBody(w, r, &req, false, logger) {
			return
		}

		res, err := d.Transfer(r.Context(), req.Recipient, string(req.Amount))
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, fundsToResponse(res), http.StatusOK)
	})
}

// handleNotice returns the transfer notice.
// GET /api/v1/transfer/notice
func handleNotice(d *dashboard.Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Notice(), http.StatusOK)
	})
}

// flexAmount accepts an amount as a JSON string or number and keeps its
// exact text.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = flexAmount(n.String())
	return nil
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// when optional is set. It writes the error response and returns false on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	logger.Debug("failed to decode request", "path", r.URL.Path, "error", err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, "request body too large: maximum size is 64KB", http.StatusBadRequest)
		return false
	}
	writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
	return false
}

func sessionToResponse(s dashboard.Session) sessionResponse {
	return sessionResponse{
		Connected:    s.Connected,
		Address:      s.Address,
		Wallet:       s.Wallet,
		Capabilities: s.Capabilities,
		Balance:      balanceToResponse(s.Balance),
		Generation:   s.Generation,
	}
}

func balanceToResponse(b snapshot.Balance) balanceResponse {
	resp := balanceResponse{Known: b.Known, Display: b.String()}
	if b.Known {
		lamports := b.Lamports
		resp.Lamports = &lamports
		resp.SOL = b.SOL().String()
	}
	return resp
}

func holdingToResponse(h snapshot.Holding) holdingResponse {
	return holdingResponse{
		Mint:     h.Mint,
		Account:  h.Account,
		Amount:   strconv.FormatUint(h.Amount, 10),
		Decimals: h.Decimals,
		UIAmount: h.UIAmount().String(),
		Name:     h.Name,
		Symbol:   h.Symbol,
		LogoURI:  h.LogoURI,
		Listed:   h.Listed,
	}
}

func summariesToResponse(items []activity.Summary) []summaryResponse {
	resp := make([]summaryResponse, len(items))
	for i, s := range items {
		resp[i] = summaryResponse{
			Signature:   s.Signature.String(),
			Slot:        s.Slot,
			BlockTime:   s.BlockTime,
			Fee:         s.FeeString(),
			FeeLamports: s.FeeLamports,
			Status:      string(s.Status),
			Memo:        s.Memo,
		}
		if s.Transfer != nil {
			resp[i].Transfer = &transferDetail{
				From:     s.Transfer.From.String(),
				To:       s.Transfer.To.String(),
				Lamports: s.Transfer.Lamports,
			}
		}
	}
	return resp
}

func messageToResponse(v auth.View, valid *bool) messageResponse {
	return messageResponse{
		State:     v.State.String(),
		Status:    v.Status,
		Message:   v.Message,
		Signature: v.Signature,
		Valid:     valid,
	}
}

func fundsToResponse(res transfer.Result) fundsResponse {
	resp := fundsResponse{
		Lamports: res.Lamports,
		Amount:   res.Amount.String(),
		Status:   res.Status,
	}
	if !res.Signature.IsZero() {
		resp.Signature = res.Signature.String()
	}
	return resp
}

// statusForKind maps a failure kind to an HTTP status code.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindNotConnected:
		return http.StatusConflict
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindCapabilityUnsupported:
		return http.StatusUnprocessableEntity
	case errs.KindNetworkFailure:
		return http.StatusBadGateway
	case errs.KindVerificationMismatch, errs.KindExhausted:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// writeKindError writes err's status message with the status code of its kind.
func writeKindError(w http.ResponseWriter, err error) {
	writeError(w, errs.Message(err), statusForKind(errs.KindOf(err)))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
