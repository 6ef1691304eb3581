// Package auth signs a message with the connected wallet and verifies the
// signature locally.
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// State is the position of the flow.
type State int

const (
	Idle State = iota
	Signed
	Verified
	VerificationFailed
	SigningFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Signed:
		return "signed"
	case Verified:
		return "verified"
	case VerificationFailed:
		return "verification_failed"
	case SigningFailed:
		return "signing_failed"
	default:
		return "unknown"
	}
}

// hasSignature reports whether a signature record exists in this state.
func (s State) hasSignature() bool {
	return s == Signed || s == Verified || s == VerificationFailed
}

// Status strings shown to the user.
const (
	StatusSigned       = "Message signed successfully. Verify the signature below."
	StatusValid        = "Signature is valid!"
	StatusInvalid      = "Signature is invalid!"
	StatusSignFailed   = "Failed to sign message"
	StatusNoSigning    = "Wallet does not support message signing"
	StatusSignFirst    = "Sign a message first"
	StatusEmptyMessage = "Message is required"
	StatusNotConnected = "Please connect your wallet first"
)

// Record is the last successful signature.
type Record struct {
	Text      string
	Message   []byte // exact bytes that were signed
	Signature string // base58
	Signer    solanago.PublicKey
}

// View is a point-in-time copy of the flow for display.
type View struct {
	State     State
	Status    string
	Message   string
	Signature string
}

// Flow is the sign/verify state machine for one identity.
type Flow struct {
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	status string
	record *Record
}

// NewFlow returns a flow in the Idle state.
func NewFlow(m *metrics.Metrics, logger *slog.Logger) *Flow {
	return &Flow{metrics: m, logger: logger}
}

// View returns the current state.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := View{State: f.state, Status: f.status}
	if f.record != nil {
		v.Message = f.record.Text
		v.Signature = f.record.Signature
	}
	return v
}

// Sign encodes text as UTF-8, signs it with w and stores the base58
// signature, replacing any previous one.
func (f *Flow) Sign(ctx context.Context, w wallet.Wallet, text string) (Record, error) {
	if w == nil {
		return Record{}, errs.New(errs.KindNotConnected, StatusNotConnected)
	}
	if text == "" {
		return Record{}, errs.New(errs.KindInvalidInput, StatusEmptyMessage)
	}

	signer, ok := w.(wallet.MessageSigner)
	if !ok {
		f.fail(StatusNoSigning)
		f.recordMetric("sign", "unsupported")
		return Record{}, errs.New(errs.KindCapabilityUnsupported, StatusNoSigning)
	}

	message := []byte(text)
	sig, err := signer.SignMessage(ctx, message)
	if err != nil {
		f.logger.ErrorContext(ctx, "error signing message",
			"wallet", w.PublicKey().String(),
			"error", err,
		)
		f.fail(StatusSignFailed)
		f.recordMetric("sign", "error")
		// A declined or failed signature is a wallet outcome, not a server fault.
		return Record{}, errs.Wrap(errs.KindCapabilityUnsupported, StatusSignFailed, err)
	}

	rec := Record{
		Text:      text,
		Message:   message,
		Signature: base58.Encode(sig),
		Signer:    w.PublicKey(),
	}

	f.mu.Lock()
	f.state = Signed
	f.status = StatusSigned
	f.record = &rec
	f.mu.Unlock()

	f.recordMetric("sign", "success")
	return rec, nil
}

// Verify checks the stored signature against the stored message bytes and
// the public key of w.
func (f *Flow) Verify(w wallet.Wallet) (bool, error) {
	return f.verify(w, nil)
}

// VerifyText re-derives the message bytes from text. The check only passes
// if text is unchanged since signing.
func (f *Flow) VerifyText(w wallet.Wallet, text string) (bool, error) {
	msg := []byte(text)
	return f.verify(w, msg)
}

func (f *Flow) verify(w wallet.Wallet, message []byte) (bool, error) {
	if w == nil {
		return false, errs.New(errs.KindNotConnected, StatusNotConnected)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.state.hasSignature() || f.record == nil {
		return false, errs.New(errs.KindInvalidInput, StatusSignFirst)
	}
	if message == nil {
		message = f.record.Message
	}

	if VerifySignature(w.PublicKey(), message, f.record.Signature) {
		f.state = Verified
		f.status = StatusValid
		f.recordMetric("verify", "valid")
		return true, nil
	}

	f.state = VerificationFailed
	f.status = StatusInvalid
	f.recordMetric("verify", "invalid")
	return false, errs.New(errs.KindVerificationMismatch, StatusInvalid)
}

func (f *Flow) fail(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = SigningFailed
	f.status = status
	f.record = nil
}

func (f *Flow) recordMetric(op, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordMessageAuth(op, outcome)
	}
}

// VerifySignature is a pure ed25519 check of a base58 signature over
// message. Malformed base58 or a wrong-length signature verifies false.
func VerifySignature(pub solanago.PublicKey, message []byte, signature string) bool {
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != solanago.SignatureLength {
		return false
	}
	return pub.Verify(message, solanago.SignatureFromBytes(sig))
}
