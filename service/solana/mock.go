package solana

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotMocked is returned by MockRPCClient for calls without a stub.
var ErrNotMocked = errors.New("rpc method not mocked")

// MockRPCClient is a hand-written RPCClient for tests in this and other packages.
// Set the function fields for the calls a test exercises; unset calls fail
// with ErrNotMocked. Calls are counted per method.
type MockRPCClient struct {
	GetBalanceFn              func(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwnerFn func(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetSignaturesForAddressFn func(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransactionFn          func(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetLatestBlockhashFn      func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionFn         func(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	RequestAirdropFn          func(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error)
	GetSignatureStatusesFn    func(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times method was invoked.
func (m *MockRPCClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockRPCClient) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	m.count("GetBalance")
	if m.GetBalanceFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetBalanceFn(ctx, account)
}

func (m *MockRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	m.count("GetTokenAccountsByOwner")
	if m.GetTokenAccountsByOwnerFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetTokenAccountsByOwnerFn(ctx, owner, conf, opts)
}

func (m *MockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	m.count("GetSignaturesForAddress")
	if m.GetSignaturesForAddressFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetSignaturesForAddressFn(ctx, address, opts)
}

func (m *MockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.count("GetTransaction")
	if m.GetTransactionFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetTransactionFn(ctx, signature, opts)
}

func (m *MockRPCClient) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.count("GetLatestBlockhash")
	if m.GetLatestBlockhashFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetLatestBlockhashFn(ctx)
}

func (m *MockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	m.count("SendTransaction")
	if m.SendTransactionFn == nil {
		return solana.Signature{}, ErrNotMocked
	}
	return m.SendTransactionFn(ctx, tx)
}

func (m *MockRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	m.count("RequestAirdrop")
	if m.RequestAirdropFn == nil {
		return solana.Signature{}, ErrNotMocked
	}
	return m.RequestAirdropFn(ctx, account, lamports)
}

func (m *MockRPCClient) GetSignatureStatuses(ctx context.Context, _ bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.count("GetSignatureStatuses")
	if m.GetSignatureStatusesFn == nil {
		return nil, ErrNotMocked
	}
	return m.GetSignatureStatusesFn(ctx, signatures...)
}

// ConfirmedStatus is a GetSignatureStatusesFn that reports every signature
// as finalized.
func ConfirmedStatus(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	out := &rpc.GetSignatureStatusesResult{}
	for range signatures {
		out.Value = append(out.Value, &rpc.SignatureStatusesResult{
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		})
	}
	return out, nil
}
