package solana

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.SystemProgramID

	// TokenProgramID is the SPL Token program. Holdings are limited to
	// accounts it owns.
	TokenProgramID = solana.TokenProgramID

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// signatureInfoFromRPC converts an RPC TransactionSignature to our domain type.
func signatureInfoFromRPC(sig *rpc.TransactionSignature) SignatureInfo {
	info := SignatureInfo{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		Memo:      sig.Memo,
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		info.BlockTime = &t
	}
	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		info.Err = &errMsg
	}
	return info
}

// detailFromResult builds a TransactionDetail from a getTransaction result.
// Fee and error come from the meta; the message is decoded only to find a
// native transfer and a memo, and a message that fails to decode leaves
// both unset.
func detailFromResult(sig solana.Signature, result *rpc.GetTransactionResult) *TransactionDetail {
	detail := &TransactionDetail{
		Signature: sig,
		Slot:      result.Slot,
	}
	if result.BlockTime != nil {
		t := result.BlockTime.Time()
		detail.BlockTime = &t
	}
	if result.Meta != nil {
		detail.Fee = result.Meta.Fee
		if result.Meta.Err != nil {
			errMsg := fmt.Sprintf("transaction failed: %v", result.Meta.Err)
			detail.Err = &errMsg
		}
	}

	if result.Transaction == nil {
		return detail
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return detail
	}

	accountKeys := tx.Message.AccountKeys
	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			continue
		}
		programID := accountKeys[instruction.ProgramIDIndex]

		if programID.Equals(SystemProgramID) && detail.Transfer == nil {
			if transfer, err := parseSystemTransfer(instruction, accountKeys); err == nil {
				detail.Transfer = transfer
			}
		}

		if programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy) {
			if memo := parseMemo(instruction.Data); memo != "" {
				detail.Memo = &memo
			}
		}
	}

	return detail
}

// parseSystemTransfer extracts a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (*Transfer, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return nil, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	// System Transfer accounts: [from, to]
	if len(instruction.Accounts) < 2 {
		return nil, fmt.Errorf("transfer missing accounts")
	}
	from, to := instruction.Accounts[0], instruction.Accounts[1]
	if int(from) >= len(accountKeys) || int(to) >= len(accountKeys) {
		return nil, fmt.Errorf("transfer account index out of bounds")
	}

	return &Transfer{
		From:     accountKeys[from],
		To:       accountKeys[to],
		Lamports: binary.LittleEndian.Uint64(instruction.Data[4:12]),
	}, nil
}

// parseMemo extracts the memo text from a Memo Program instruction.
func parseMemo(data []byte) string {
	memo := string(data)

	// Some clients base64 the memo before writing it
	if decoded, err := base64.StdEncoding.DecodeString(memo); err == nil && len(decoded) > 0 {
		if utf8.Valid(decoded) && !containsNUL(decoded) {
			return string(decoded)
		}
	}

	return memo
}

func containsNUL(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

// parsedTokenAccount mirrors the jsonParsed layout of an SPL token account:
// {"program":"spl-token","parsed":{"info":{"mint":..,"tokenAmount":{..}},"type":"account"}}
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// tokenAccountFromRPC decodes a jsonParsed token account.
func tokenAccountFromRPC(acct *rpc.TokenAccount) (TokenAccount, error) {
	if acct == nil || acct.Account.Data == nil {
		return TokenAccount{}, fmt.Errorf("token account has no data")
	}
	raw := acct.Account.Data.GetRawJSON()
	if len(raw) == 0 {
		return TokenAccount{}, fmt.Errorf("token account %s is not jsonParsed", acct.Pubkey)
	}

	var parsed parsedTokenAccount
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TokenAccount{}, fmt.Errorf("decode token account %s: %w", acct.Pubkey, err)
	}

	mint, err := solana.PublicKeyFromBase58(parsed.Parsed.Info.Mint)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("token account %s has invalid mint %q: %w", acct.Pubkey, parsed.Parsed.Info.Mint, err)
	}

	amount, err := strconv.ParseUint(parsed.Parsed.Info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("token account %s has invalid amount %q: %w", acct.Pubkey, parsed.Parsed.Info.TokenAmount.Amount, err)
	}

	return TokenAccount{
		Address:  acct.Pubkey,
		Mint:     mint,
		Amount:   amount,
		Decimals: parsed.Parsed.Info.TokenAmount.Decimals,
	}, nil
}
