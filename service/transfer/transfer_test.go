package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/solboard/service/errs"
	natspkg "github.com/brojonat/solboard/service/nats"
	"github.com/brojonat/solboard/service/solana"
	"github.com/brojonat/solboard/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recipient = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newKeypair(t *testing.T) *wallet.Keypair {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return wallet.NewKeypair(key, "test")
}

func newService(mock *solana.MockRPCClient, pub Publisher, cfg Config) *Service {
	client := solana.NewClient(mock, "test", nil, testLogger(), solana.WithConfirmPollInterval(time.Millisecond))
	return NewService(client, pub, cfg, nil, testLogger())
}

func failedStatus(ctx context.Context, sigs ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{{
		Err:                map[string]any{"InstructionError": []any{0, "Custom"}},
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
	}}}, nil
}

func TestParseAirdropAmount(t *testing.T) {
	tests := []struct {
		text     string
		lamports uint64
		ok       bool
	}{
		{"1", 1_000_000_000, true},
		{"0.5", 500_000_000, true},
		{" 2 ", 2_000_000_000, true},
		{"0.000000001", 1, true},
		{"2.000000001", 0, false},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, lamports, err := ParseAirdropAmount(tt.text, DefaultMaxAirdrop)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrInvalidInput))
				assert.Equal(t, "Please enter a valid amount between 0 and 2 SOL.", errs.Message(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lamports, lamports)
		})
	}
}

func TestParseAmount_FinerThanOneLamport(t *testing.T) {
	for _, text := range []string{"0.0000000001", "1e-10", "1.2345678901"} {
		_, _, err := ParseAirdropAmount(text, DefaultMaxAirdrop)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), text)
		assert.Equal(t, StatusTooPrecise, errs.Message(err), text)

		_, _, _, err = ParseTransfer(recipient.String(), text)
		require.Error(t, err, text)
		assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err), text)
		assert.Equal(t, StatusTooPrecise, errs.Message(err), text)
	}
}

func TestParseTransfer(t *testing.T) {
	to, amount, lamports, err := ParseTransfer(recipient.String(), "0.25")
	require.NoError(t, err)
	assert.Equal(t, recipient, to)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, uint64(250_000_000), lamports)

	tests := []struct {
		name, recipient, amount, msg string
	}{
		{"missing recipient", "", "1", "Please provide both recipient address and amount."},
		{"missing amount", recipient.String(), " ", "Please provide both recipient address and amount."},
		{"bad recipient", "not-a-key", "1", "Invalid recipient address"},
		{"zero amount", recipient.String(), "0", "Please enter a valid amount"},
		{"non numeric", recipient.String(), "ten", "Please enter a valid amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParseTransfer(tt.recipient, tt.amount)
			require.Error(t, err)
			assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
			assert.Equal(t, tt.msg, errs.Message(err))
		})
	}
}

func TestAirdrop_InvalidAmountMakesNoNetworkCall(t *testing.T) {
	mock := &solana.MockRPCClient{}
	svc := newService(mock, nil, Config{AirdropEnabled: true})

	for _, text := range []string{"0", "3", "abc", "-0.1"} {
		_, err := svc.Airdrop(context.Background(), newKeypair(t), text)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), text)
	}
	assert.Equal(t, 0, mock.Calls("RequestAirdrop"))
}

func TestAirdrop_NotConnected(t *testing.T) {
	svc := newService(&solana.MockRPCClient{}, nil, Config{AirdropEnabled: true})
	_, err := svc.Airdrop(context.Background(), nil, "1")
	assert.True(t, errors.Is(err, errs.ErrNotConnected))
}

func TestAirdrop_Disabled(t *testing.T) {
	mock := &solana.MockRPCClient{}
	svc := newService(mock, nil, Config{AirdropEnabled: false})
	_, err := svc.Airdrop(context.Background(), newKeypair(t), "1")
	assert.True(t, errors.Is(err, errs.ErrCapabilityUnsupported))
	assert.Equal(t, 0, mock.Calls("RequestAirdrop"))
}

func TestAirdrop_Success(t *testing.T) {
	kp := newKeypair(t)
	sig := solana.TestSignature(7)
	mock := &solana.MockRPCClient{
		RequestAirdropFn: func(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error) {
			assert.Equal(t, kp.PublicKey(), account)
			assert.Equal(t, uint64(1_500_000_000), lamports)
			return sig, nil
		},
		GetSignatureStatusesFn: solana.ConfirmedStatus,
	}
	pub := natspkg.NewMockPublisher()
	svc := newService(mock, pub, Config{AirdropEnabled: true})

	res, err := svc.Airdrop(context.Background(), kp, "1.5")
	require.NoError(t, err)
	assert.Equal(t, sig, res.Signature)
	assert.Equal(t, "Successfully airdropped 1.5 SOL to your wallet!", res.Status)
	assert.False(t, svc.AirdropInFlight())

	events := pub.GetPublishedEventsForWallet(kp.PublicKey().String())
	require.Len(t, events, 1)
	assert.Equal(t, natspkg.KindAirdrop, events[0].Kind)
	assert.Equal(t, natspkg.OutcomeConfirmed, events[0].Outcome)
	assert.Equal(t, sig.String(), events[0].Signature)
	assert.Equal(t, uint64(1_500_000_000), events[0].Lamports)
}

func TestAirdrop_RequestFails(t *testing.T) {
	mock := &solana.MockRPCClient{
		RequestAirdropFn: func(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error) {
			return solanago.Signature{}, errors.New("rate limited")
		},
	}
	pub := natspkg.NewMockPublisher()
	svc := newService(mock, pub, Config{AirdropEnabled: true})

	res, err := svc.Airdrop(context.Background(), newKeypair(t), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNetworkFailure))
	assert.Contains(t, errs.Message(err), "Airdrop failed")
	assert.Contains(t, res.Status, "rate limited")
	assert.Equal(t, 0, mock.Calls("GetSignatureStatuses"))

	events := pub.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, natspkg.OutcomeFailed, events[0].Outcome)
	assert.Empty(t, events[0].Signature)
}

func TestAirdrop_PublishErrorDoesNotFailRequest(t *testing.T) {
	mock := &solana.MockRPCClient{
		RequestAirdropFn: func(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error) {
			return solana.TestSignature(1), nil
		},
		GetSignatureStatusesFn: solana.ConfirmedStatus,
	}
	pub := natspkg.NewMockPublisher()
	pub.SetPublishError(errors.New("nats down"))
	svc := newService(mock, pub, Config{AirdropEnabled: true})

	_, err := svc.Airdrop(context.Background(), newKeypair(t), "1")
	assert.NoError(t, err)
}

func TestAirdrop_RejectsSecondSubmitWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	mock := &solana.MockRPCClient{
		RequestAirdropFn: func(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error) {
			<-release
			return solana.TestSignature(1), nil
		},
		GetSignatureStatusesFn: solana.ConfirmedStatus,
	}
	svc := newService(mock, nil, Config{AirdropEnabled: true})
	kp := newKeypair(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Airdrop(context.Background(), kp, "1")
		done <- err
	}()
	require.Eventually(t, svc.AirdropInFlight, time.Second, time.Millisecond)

	_, err := svc.Airdrop(context.Background(), kp, "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	assert.Equal(t, "request already in progress", errs.Message(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, mock.Calls("RequestAirdrop"))
}

func TestTransfer_Success(t *testing.T) {
	kp := newKeypair(t)
	blockhash := solanago.Hash{4, 2}
	var sent *solanago.Transaction
	mock := &solana.MockRPCClient{
		GetLatestBlockhashFn: func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
			return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: blockhash}}, nil
		},
		SendTransactionFn: func(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
			sent = tx
			return tx.Signatures[0], nil
		},
		GetSignatureStatusesFn: solana.ConfirmedStatus,
	}
	pub := natspkg.NewMockPublisher()
	svc := newService(mock, pub, Config{})

	res, err := svc.Transfer(context.Background(), kp, recipient.String(), "0.1")
	require.NoError(t, err)
	require.NotNil(t, sent)

	require.NoError(t, sent.VerifySignatures())
	assert.Equal(t, blockhash, sent.Message.RecentBlockhash)
	assert.Equal(t, kp.PublicKey(), sent.Message.AccountKeys[0])
	require.Len(t, sent.Message.Instructions, 1)

	inst := sent.Message.Instructions[0]
	assert.Equal(t, solanago.SystemProgramID, sent.Message.AccountKeys[inst.ProgramIDIndex])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(inst.Data[0:4]))
	assert.Equal(t, uint64(100_000_000), binary.LittleEndian.Uint64(inst.Data[4:12]))

	assert.Equal(t, "Transaction confirmed!\nSignature: "+res.Signature.String(), res.Status)

	events := pub.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, natspkg.KindTransfer, events[0].Kind)
	require.NotNil(t, events[0].Counterparty)
	assert.Equal(t, recipient.String(), *events[0].Counterparty)
}

func TestTransfer_ConfirmationError(t *testing.T) {
	mock := &solana.MockRPCClient{
		GetLatestBlockhashFn: func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
			return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solanago.Hash{1}}}, nil
		},
		SendTransactionFn: func(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
			return tx.Signatures[0], nil
		},
		GetSignatureStatusesFn: failedStatus,
	}
	svc := newService(mock, nil, Config{})

	res, err := svc.Transfer(context.Background(), newKeypair(t), recipient.String(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNetworkFailure))
	assert.Contains(t, res.Status, "Transaction failed! ")
	assert.Equal(t, res.Status, errs.Message(err))
	assert.False(t, svc.TransferInFlight())
}

func TestTransfer_ConfirmTimeout(t *testing.T) {
	mock := &solana.MockRPCClient{
		GetLatestBlockhashFn: func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
			return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solanago.Hash{1}}}, nil
		},
		SendTransactionFn: func(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
			return tx.Signatures[0], nil
		},
		GetSignatureStatusesFn: func(ctx context.Context, sigs ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
		},
	}
	svc := newService(mock, nil, Config{ConfirmTimeout: 20 * time.Millisecond})

	_, err := svc.Transfer(context.Background(), newKeypair(t), recipient.String(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTransfer_WatchOnlyWalletCannotSend(t *testing.T) {
	w, err := wallet.NewWatchOnly(recipient.String())
	require.NoError(t, err)
	mock := &solana.MockRPCClient{}
	svc := newService(mock, nil, Config{})

	_, err = svc.Transfer(context.Background(), w, recipient.String(), "1")
	assert.True(t, errors.Is(err, errs.ErrCapabilityUnsupported))
	assert.Equal(t, 0, mock.Calls("GetLatestBlockhash"))
}

func TestTransfer_InvalidInputMakesNoNetworkCall(t *testing.T) {
	mock := &solana.MockRPCClient{}
	svc := newService(mock, nil, Config{})

	_, err := svc.Transfer(context.Background(), newKeypair(t), "", "1")
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	assert.Equal(t, 0, mock.Calls("GetLatestBlockhash"))
}

func TestTransfer_NotConnected(t *testing.T) {
	svc := newService(&solana.MockRPCClient{}, nil, Config{})
	_, err := svc.Transfer(context.Background(), nil, recipient.String(), "1")
	assert.True(t, errors.Is(err, errs.ErrNotConnected))
}
