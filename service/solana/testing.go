package solana

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Test fixtures shared by packages that build on Client. They produce RPC
// results the same way the node encodes them, so they exercise the real
// decoding paths.

// TestSignature returns a deterministic signature whose first byte is n.
func TestSignature(n byte) solana.Signature {
	var sig solana.Signature
	sig[0] = n
	sig[63] = n
	return sig
}

// TokenAccountsResult builds a jsonParsed getTokenAccountsByOwner result.
func TokenAccountsResult(accounts ...TokenAccount) (*rpc.GetTokenAccountsResult, error) {
	type tokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	}
	type item struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Lamports uint64          `json:"lamports"`
			Owner    string          `json:"owner"`
			Data     json.RawMessage `json:"data"`
		} `json:"account"`
	}

	items := make([]item, 0, len(accounts))
	for _, a := range accounts {
		data, err := json.Marshal(map[string]any{
			"program": "spl-token",
			"parsed": map[string]any{
				"type": "account",
				"info": map[string]any{
					"mint":        a.Mint.String(),
					"tokenAmount": tokenAmount{Amount: fmt.Sprintf("%d", a.Amount), Decimals: a.Decimals},
				},
			},
		})
		if err != nil {
			return nil, err
		}
		var it item
		it.Pubkey = a.Address.String()
		it.Account.Lamports = 2039280
		it.Account.Owner = TokenProgramID.String()
		it.Account.Data = data
		items = append(items, it)
	}

	body, err := json.Marshal(map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   items,
	})
	if err != nil {
		return nil, err
	}
	var out rpc.GetTokenAccountsResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionResult builds a base64-encoded getTransaction result for tx.
// A non-nil txErr marks the transaction as failed in its meta.
func TransactionResult(tx *solana.Transaction, slot uint64, blockTime int64, fee uint64, txErr any) (*rpc.GetTransactionResult, error) {
	var encoded any
	if tx != nil {
		b64, err := tx.ToBase64()
		if err != nil {
			return nil, err
		}
		encoded = []string{b64, "base64"}
	}

	body, err := json.Marshal(map[string]any{
		"slot":        slot,
		"blockTime":   blockTime,
		"transaction": encoded,
		"meta": map[string]any{
			"err":          txErr,
			"fee":          fee,
			"preBalances":  []uint64{},
			"postBalances": []uint64{},
		},
	})
	if err != nil {
		return nil, err
	}
	var out rpc.GetTransactionResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
