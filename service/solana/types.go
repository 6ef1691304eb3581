package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TokenAccount is one SPL token account owned by a wallet.
// Amount is the raw integer balance; divide by 10^Decimals for display.
type TokenAccount struct {
	Address  solana.PublicKey
	Mint     solana.PublicKey
	Amount   uint64
	Decimals uint8
}

// SignatureInfo is the metadata returned by the signatures-for-address listing.
// It is available even when the full transaction is not.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Err       *string // nil if the transaction succeeded
	Memo      *string
}

// Failed reports whether the ledger recorded an error for the transaction.
func (s SignatureInfo) Failed() bool {
	return s.Err != nil
}

// TransactionDetail holds the fields of a full transaction record the
// dashboard shows.
type TransactionDetail struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Fee       uint64 // lamports
	Err       *string
	Transfer  *Transfer // first native transfer in the message, if any
	Memo      *string
}

// Failed reports whether the transaction meta carries an error.
func (d *TransactionDetail) Failed() bool {
	return d.Err != nil
}

// Transfer is a native SOL movement parsed from a System program instruction.
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}
