package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solboard/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (solana.Signature, error)

	RequestAirdrop(
		ctx context.Context,
		account solana.PublicKey,
		lamports uint64,
		commitment rpc.CommitmentType,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// DefaultConfirmPollInterval is how often ConfirmTransaction checks a
// signature status.
const DefaultConfirmPollInterval = 500 * time.Millisecond

// Client is the one ledger handle shared by every dashboard flow.
// It wraps the RPC client with domain-specific operations. It never
// retries: every failure is returned to the caller as-is.
type Client struct {
	rpc          RPCClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	endpoint     string // RPC endpoint identifier for metrics (e.g., "devnet", rpc host)
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithConfirmPollInterval sets the signature status polling interval.
func WithConfirmPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		pollInterval: DefaultConfirmPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// record reports an RPC call outcome to metrics.
func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// Balance returns the lamport balance of owner.
func (c *Client) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	c.record("getBalance", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get balance",
			"wallet", owner.String(),
			"error", err,
		)
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if out == nil {
		return 0, fmt.Errorf("get balance: empty response")
	}
	return out.Value, nil
}

// TokenAccounts lists the SPL token accounts owned by owner. A single
// account that cannot be decoded fails the whole call.
func (c *Client) TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	programID := TokenProgramID
	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingJSONParsed,
		},
	)
	c.record("getTokenAccountsByOwner", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get token accounts",
			"wallet", owner.String(),
			"error", err,
		)
		return nil, fmt.Errorf("get token accounts: %w", err)
	}
	if out == nil {
		return []TokenAccount{}, nil
	}

	accounts := make([]TokenAccount, 0, len(out.Value))
	for _, raw := range out.Value {
		acct, err := tokenAccountFromRPC(raw)
		if err != nil {
			return nil, fmt.Errorf("get token accounts: %w", err)
		}
		accounts = append(accounts, acct)
	}

	c.logger.DebugContext(ctx, "fetched token accounts",
		"wallet", owner.String(),
		"count", len(accounts),
	)
	return accounts, nil
}

// Signatures returns up to limit signatures for address in reverse
// chronological order. When before is set, only signatures strictly older
// than it are returned.
func (c *Client) Signatures(ctx context.Context, address solana.PublicKey, limit int, before *solana.Signature) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != nil {
		opts.Before = *before
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", address.String(),
		"limit", limit,
		"before", before,
	)

	start := time.Now()
	sigs, err := c.rpc.GetSignaturesForAddress(ctx, address, opts)
	c.record("getSignaturesForAddress", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", address.String(),
			"error", err,
		)
		return nil, fmt.Errorf("get signatures: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(sigs)))
	}

	out := make([]SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		out = append(out, signatureInfoFromRPC(sig))
	}
	return out, nil
}

// TransactionDetail fetches the full record of one transaction. It returns
// nil, nil when the ledger has no record of the signature.
func (c *Client) TransactionDetail(ctx context.Context, sig solana.Signature) (*TransactionDetail, error) {
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &[]uint64{0}[0],
	}

	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, opts)
	c.record("getTransaction", start, err)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get transaction",
			"signature", sig.String(),
			"error", err,
		)
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if result == nil {
		return nil, nil
	}
	return detailFromResult(sig, result), nil
}

// LatestBlockhash returns a recent blockhash for building transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx)
	c.record("sendTransaction", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to send transaction", "error", err)
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// RequestAirdrop asks the cluster faucet for lamports.
func (c *Client) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.RequestAirdrop(ctx, account, lamports, rpc.CommitmentFinalized)
	c.record("requestAirdrop", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to request airdrop",
			"wallet", account.String(),
			"lamports", lamports,
			"error", err,
		)
		return solana.Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	return sig, nil
}

// ConfirmTransaction waits until sig reaches commitment. It polls the
// signature status every poll interval and stops at the first RPC error,
// at a transaction error, or when ctx is done.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkStatus(ctx, sig, commitment)
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm transaction %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	c.record("getSignatureStatuses", start, err)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirm transaction %s: %w", sig, err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed: %v", sig, status.Err)
	}

	reached := confirmationRank(status.ConfirmationStatus) >= commitmentRank(commitment)
	if reached {
		c.logger.DebugContext(ctx, "transaction confirmed",
			"signature", sig.String(),
			"status", string(status.ConfirmationStatus),
		)
	}
	return reached, nil
}

func confirmationRank(s rpc.ConfirmationStatusType) int {
	switch s {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

func commitmentRank(c rpc.CommitmentType) int {
	switch c {
	case rpc.CommitmentProcessed:
		return 1
	case rpc.CommitmentFinalized:
		return 3
	default:
		return 2
	}
}
