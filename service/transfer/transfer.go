// Package transfer moves SOL into and out of the connected account: faucet
// airdrops and plain System program transfers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/metrics"
	natspkg "github.com/brojonat/solboard/service/nats"
	"github.com/brojonat/solboard/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// lamportDecimals is the number of decimal places in one SOL.
const lamportDecimals = 9

// DefaultMaxAirdrop is the largest airdrop accepted, in SOL.
var DefaultMaxAirdrop = decimal.NewFromInt(2)

// ErrInFlight rejects a submit while the previous one of the same form is
// outstanding.
var ErrInFlight = errs.Invalidf("request already in progress")

// Ledger is the subset of the ledger client used to move funds. It also
// serves as the wallet's transaction submitter.
type Ledger interface {
	RequestAirdrop(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error)
	LatestBlockhash(ctx context.Context) (solanago.Hash, error)
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solanago.Signature, commitment rpc.CommitmentType) error
}

// Publisher receives an event for every airdrop or transfer that reached
// the ledger.
type Publisher interface {
	PublishActivity(ctx context.Context, event *natspkg.ActivityEvent) error
}

// Config tunes a Service.
type Config struct {
	MaxAirdrop     decimal.Decimal // zero selects DefaultMaxAirdrop
	AirdropEnabled bool
	ConfirmTimeout time.Duration // zero waits until ctx is done
}

// Result describes a completed request. Status is the message shown to the
// user; it is also set when the ledger rejected the request.
type Result struct {
	Signature solanago.Signature
	Lamports  uint64
	Amount    decimal.Decimal
	Status    string
}

// Service runs airdrop and transfer requests. Each form accepts one
// request at a time.
type Service struct {
	ledger    Ledger
	publisher Publisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	airdropBusy  atomic.Bool
	transferBusy atomic.Bool
}

// NewService creates a Service. The publisher and metrics may be nil.
func NewService(ledger Ledger, publisher Publisher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if !cfg.MaxAirdrop.IsPositive() {
		cfg.MaxAirdrop = DefaultMaxAirdrop
	}
	return &Service{
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// AirdropInFlight reports whether an airdrop is outstanding.
func (s *Service) AirdropInFlight() bool { return s.airdropBusy.Load() }

// TransferInFlight reports whether a transfer is outstanding.
func (s *Service) TransferInFlight() bool { return s.transferBusy.Load() }

// ParseAirdropAmount validates an airdrop amount entered in SOL. The amount
// must be greater than zero and at most max.
func ParseAirdropAmount(text string, max decimal.Decimal) (decimal.Decimal, uint64, error) {
	invalid := errs.Invalidf("Please enter a valid amount between 0 and %s SOL.", max.String())

	amount, lamports, err := parseSOL(text)
	if errors.Is(err, errTooPrecise) {
		return decimal.Zero, 0, errs.New(errs.KindInvalidInput, StatusTooPrecise)
	}
	if err != nil || amount.GreaterThan(max) {
		return decimal.Zero, 0, invalid
	}
	return amount, lamports, nil
}

// ParseTransfer validates the transfer form.
func ParseTransfer(recipient, amount string) (solanago.PublicKey, decimal.Decimal, uint64, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || strings.TrimSpace(amount) == "" {
		return solanago.PublicKey{}, decimal.Zero, 0, errs.Invalidf("Please provide both recipient address and amount.")
	}

	to, err := solanago.PublicKeyFromBase58(recipient)
	if err != nil {
		return solanago.PublicKey{}, decimal.Zero, 0, errs.Invalidf("Invalid recipient address")
	}

	sol, lamports, err := parseSOL(amount)
	if errors.Is(err, errTooPrecise) {
		return solanago.PublicKey{}, decimal.Zero, 0, errs.New(errs.KindInvalidInput, StatusTooPrecise)
	}
	if err != nil {
		return solanago.PublicKey{}, decimal.Zero, 0, errs.Invalidf("Please enter a valid amount")
	}
	return to, sol, lamports, nil
}

// StatusTooPrecise rejects amounts finer than one lamport.
const StatusTooPrecise = "Please enter an amount with at most 9 decimal places."

var errTooPrecise = errors.New("amount is finer than one lamport")

// parseSOL parses a positive SOL amount with at most nine decimals.
func parseSOL(text string) (decimal.Decimal, uint64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, 0, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, 0, fmt.Errorf("amount must be positive")
	}
	raw := amount.Shift(lamportDecimals)
	if !raw.Equal(raw.Truncate(0)) {
		return decimal.Zero, 0, errTooPrecise
	}
	if !raw.BigInt().IsUint64() {
		return decimal.Zero, 0, fmt.Errorf("amount too large")
	}
	return amount, raw.BigInt().Uint64(), nil
}

// Airdrop requests amountText SOL from the cluster faucet for w and waits
// until the airdrop is finalized. Invalid amounts are rejected before any
// network call.
func (s *Service) Airdrop(ctx context.Context, w wallet.Wallet, amountText string) (Result, error) {
	if w == nil {
		return Result{}, errs.ErrNotConnected
	}
	if !s.cfg.AirdropEnabled {
		s.record(natspkg.KindAirdrop, "rejected")
		return Result{}, errs.New(errs.KindCapabilityUnsupported, "Airdrops are not available on this network")
	}
	amount, lamports, err := ParseAirdropAmount(amountText, s.cfg.MaxAirdrop)
	if err != nil {
		s.record(natspkg.KindAirdrop, "rejected")
		return Result{}, err
	}
	if !s.airdropBusy.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer s.airdropBusy.Store(false)

	owner := w.PublicKey()
	res := Result{Lamports: lamports, Amount: amount}

	s.logger.InfoContext(ctx, "requesting airdrop",
		"wallet", owner.String(),
		"lamports", lamports,
	)

	sig, err := s.ledger.RequestAirdrop(ctx, owner, lamports)
	if err == nil {
		res.Signature = sig
		err = s.confirm(ctx, sig, rpc.CommitmentFinalized)
	}
	if err != nil {
		res.Status = "Airdrop failed: " + err.Error()
		s.finish(ctx, natspkg.KindAirdrop, owner, nil, res, err)
		return res, &errs.Error{Kind: errs.KindNetworkFailure, Msg: res.Status, Err: err}
	}

	res.Status = fmt.Sprintf("Successfully airdropped %s SOL to your wallet!", amount.String())
	s.finish(ctx, natspkg.KindAirdrop, owner, nil, res, nil)
	return res, nil
}

// Transfer sends amountText SOL from w to recipient with a single System
// program transfer and waits for the confirmed commitment. The wallet signs
// as fee payer.
func (s *Service) Transfer(ctx context.Context, w wallet.Wallet, recipient, amountText string) (Result, error) {
	if w == nil {
		return Result{}, errs.ErrNotConnected
	}
	to, amount, lamports, err := ParseTransfer(recipient, amountText)
	if err != nil {
		s.record(natspkg.KindTransfer, "rejected")
		return Result{}, err
	}
	sender, ok := w.(wallet.TransactionSender)
	if !ok {
		s.record(natspkg.KindTransfer, "rejected")
		return Result{}, errs.New(errs.KindCapabilityUnsupported, "Wallet cannot send transactions")
	}
	if !s.transferBusy.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer s.transferBusy.Store(false)

	from := w.PublicKey()
	res := Result{Lamports: lamports, Amount: amount}

	sig, err := s.send(ctx, sender, from, to, lamports)
	if err == nil {
		res.Signature = sig
		err = s.confirm(ctx, sig, rpc.CommitmentConfirmed)
	}
	counterparty := to.String()
	if err != nil {
		res.Status = "Transaction failed! " + err.Error()
		s.finish(ctx, natspkg.KindTransfer, from, &counterparty, res, err)
		return res, &errs.Error{Kind: errs.KindNetworkFailure, Msg: res.Status, Err: err}
	}

	res.Status = fmt.Sprintf("Transaction confirmed!\nSignature: %s", sig)
	s.finish(ctx, natspkg.KindTransfer, from, &counterparty, res, nil)
	return res, nil
}

func (s *Service) send(ctx context.Context, sender wallet.TransactionSender, from, to solanago.PublicKey, lamports uint64) (solanago.Signature, error) {
	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solanago.Signature{}, err
	}

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		blockhash,
		solanago.TransactionPayer(from),
	)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "sending transfer",
		"from", from.String(),
		"to", to.String(),
		"lamports", lamports,
	)
	return sender.SendTransaction(ctx, tx, s.ledger)
}

func (s *Service) confirm(ctx context.Context, sig solanago.Signature, commitment rpc.CommitmentType) error {
	if s.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
		defer cancel()
	}
	return s.ledger.ConfirmTransaction(ctx, sig, commitment)
}

// finish logs, records and publishes the outcome of a request that reached
// the ledger. Publishing is best effort.
func (s *Service) finish(ctx context.Context, kind string, owner solanago.PublicKey, counterparty *string, res Result, err error) {
	outcome := natspkg.OutcomeConfirmed
	if err != nil {
		outcome = natspkg.OutcomeFailed
		s.logger.WarnContext(ctx, kind+" failed",
			"wallet", owner.String(),
			"lamports", res.Lamports,
			"error", err,
		)
	} else {
		s.logger.InfoContext(ctx, kind+" confirmed",
			"wallet", owner.String(),
			"signature", res.Signature.String(),
		)
	}
	s.record(kind, outcome)

	if s.publisher == nil {
		return
	}
	event := &natspkg.ActivityEvent{
		Kind:          kind,
		Outcome:       outcome,
		WalletAddress: owner.String(),
		Counterparty:  counterparty,
		Lamports:      res.Lamports,
		Amount:        res.Amount.String(),
		Status:        res.Status,
		PublishedAt:   time.Now().UTC(),
	}
	if !res.Signature.IsZero() {
		event.Signature = res.Signature.String()
	}
	// The request context may already be cancelled when confirmation timed out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if perr := s.publisher.PublishActivity(pubCtx, event); perr != nil {
		s.logger.ErrorContext(ctx, "failed to publish activity event",
			"wallet", owner.String(),
			"kind", kind,
			"error", perr,
		)
	}
}

func (s *Service) record(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordFundsRequest(kind, outcome)
	}
}
