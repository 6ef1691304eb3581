// Package wallet provides the identities a dashboard session can connect.
//
// A Wallet always exposes a public key. Signing messages and sending
// transactions are optional capabilities discovered with a type assertion,
// so a watch-only address can drive every read-only flow.
package wallet

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Wallet is a connected identity.
type Wallet interface {
	PublicKey() solanago.PublicKey
	Name() string
}

// MessageSigner is implemented by wallets that can sign arbitrary bytes.
type MessageSigner interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Submitter sends a fully signed transaction to the ledger.
type Submitter interface {
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
}

// TransactionSender is implemented by wallets that can sign a transaction
// and hand it to a Submitter.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx *solanago.Transaction, via Submitter) (solanago.Signature, error)
}

// Capabilities summarizes what a wallet can do.
type Capabilities struct {
	SignMessage     bool `json:"sign_message"`
	SendTransaction bool `json:"send_transaction"`
}

// CapabilitiesOf inspects w for optional capabilities.
func CapabilitiesOf(w Wallet) Capabilities {
	if w == nil {
		return Capabilities{}
	}
	_, signs := w.(MessageSigner)
	_, sends := w.(TransactionSender)
	return Capabilities{SignMessage: signs, SendTransaction: sends}
}

// Keypair is a wallet backed by a local ed25519 private key.
type Keypair struct {
	key  solanago.PrivateKey
	name string
}

// NewKeypair wraps an existing private key.
func NewKeypair(key solanago.PrivateKey, name string) *Keypair {
	return &Keypair{key: key, name: name}
}

// LoadKeypair reads a solana-keygen JSON keypair file.
func LoadKeypair(path string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &Keypair{key: key, name: "keypair"}, nil
}

func (k *Keypair) PublicKey() solanago.PublicKey { return k.key.PublicKey() }

func (k *Keypair) Name() string { return k.name }

// SignMessage returns the 64-byte ed25519 signature of message.
func (k *Keypair) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := k.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig[:], nil
}

// SendTransaction signs tx as fee payer and submits it.
func (k *Keypair) SendTransaction(ctx context.Context, tx *solanago.Transaction, via Submitter) (solanago.Signature, error) {
	pub := k.PublicKey()
	_, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(pub) {
			return &k.key
		}
		return nil
	})
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}
	return via.SendTransaction(ctx, tx)
}

// WatchOnly is a wallet that knows only an address. It supports no
// optional capabilities.
type WatchOnly struct {
	address solanago.PublicKey
}

// NewWatchOnly parses a base58 address into a watch-only wallet.
func NewWatchOnly(address string) (*WatchOnly, error) {
	pk, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return &WatchOnly{address: pk}, nil
}

func (w *WatchOnly) PublicKey() solanago.PublicKey { return w.address }

func (w *WatchOnly) Name() string { return "watch-only" }
