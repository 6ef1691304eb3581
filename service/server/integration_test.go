package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/solboard/client"
	"github.com/brojonat/solboard/service/catalog"
	"github.com/brojonat/solboard/service/config"
	"github.com/brojonat/solboard/service/dashboard"
	natspkg "github.com/brojonat/solboard/service/nats"
	"github.com/brojonat/solboard/service/server"
	"github.com/brojonat/solboard/service/snapshot"
	"github.com/brojonat/solboard/service/solana"
	"github.com/brojonat/solboard/service/transfer"
	"github.com/brojonat/solboard/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipient = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// TestServerIntegration drives the full request/response cycle through the
// HTTP client against a live server backed by a mocked ledger.
func TestServerIntegration(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tokens": []}`))
	}))
	defer catalogSrv.Close()

	sigs := []*rpc.TransactionSignature{
		{Signature: solana.TestSignature(1), Slot: 20},
		{Signature: solana.TestSignature(2), Slot: 19},
	}
	var sent *solanago.Transaction
	mock := &solana.MockRPCClient{
		GetBalanceFn: func(ctx context.Context, account solanago.PublicKey) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{Value: 2_500_000_000}, nil
		},
		GetSignaturesForAddressFn: func(ctx context.Context, address solanago.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
			if opts != nil && opts.Before != (solanago.Signature{}) {
				return nil, nil
			}
			return sigs, nil
		},
		GetTransactionFn: func(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
			return solana.TransactionResult(nil, 20, 1_700_000_000, 5000, nil)
		},
		GetLatestBlockhashFn: func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
			return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solanago.Hash{7}}}, nil
		},
		SendTransactionFn: func(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
			sent = tx
			return tx.Signatures[0], nil
		},
		GetSignatureStatusesFn: solana.ConfirmedStatus,
	}

	rpcClient := solana.NewClient(mock, "devnet", nil, logger, solana.WithConfirmPollInterval(time.Millisecond))
	fetcher, err := catalog.NewFetcher(catalogSrv.URL, config.DefaultTokenListQuery, nil, nil, logger)
	require.NoError(t, err)

	publisher := natspkg.NewMockPublisher()
	funds := transfer.NewService(rpcClient, publisher, transfer.Config{AirdropEnabled: true, ConfirmTimeout: time.Second}, nil, logger)
	dash := dashboard.New(snapshot.NewBuilder(rpcClient, fetcher, nil, logger), rpcClient, funds, dashboard.Config{}, nil, logger)

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	kp := wallet.NewKeypair(key, "keypair")

	srv := server.New(":0", &config.Config{}, dash, kp, nil, nil, logger).
		WithBuildInfo(server.BuildInfo{Version: "v0.1.0", Commit: "deadbeef"})
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	defer srv.Shutdown(context.Background())

	c := client.NewClient(httpSrv.URL, nil, nil)
	ctx := context.Background()

	t.Run("health and version", func(t *testing.T) {
		require.NoError(t, c.Health(ctx))
		v, err := c.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v0.1.0", v.Version)
	})

	t.Run("operations before connect", func(t *testing.T) {
		_, err := c.Balance(ctx)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	})

	t.Run("connect keypair", func(t *testing.T) {
		session, err := c.Connect(ctx, "")
		require.NoError(t, err)
		assert.True(t, session.Connected)
		assert.Equal(t, kp.PublicKey().String(), session.Address)
		assert.True(t, session.Capabilities.SendTransaction)
		assert.Equal(t, "2.5000 SOL", session.Balance.Display)
		assert.Empty(t, session.Warning)
	})

	t.Run("activity pages", func(t *testing.T) {
		page, err := c.LoadMore(ctx)
		require.NoError(t, err)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, solana.TestSignature(1).String(), page.Entries[0].Signature)
		assert.Equal(t, "0.000005", page.Entries[0].Fee)

		page, err = c.LoadMore(ctx)
		require.NoError(t, err)
		assert.True(t, page.Exhausted)

		feed, err := c.Activity(ctx)
		require.NoError(t, err)
		assert.Len(t, feed.Items, 2)
		assert.True(t, feed.Exhausted)
	})

	t.Run("sign and verify", func(t *testing.T) {
		state, err := c.Sign(ctx, "hello solboard")
		require.NoError(t, err)
		assert.Equal(t, "signed", state.State)
		assert.NotEmpty(t, state.Signature)

		state, err = c.Verify(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "verified", state.State)
		require.NotNil(t, state.Valid)
		assert.True(t, *state.Valid)

		edited := "hello solboard!"
		state, err = c.Verify(ctx, &edited)
		require.NoError(t, err)
		assert.Equal(t, "verification_failed", state.State)
		assert.False(t, *state.Valid)
	})

	t.Run("transfer", func(t *testing.T) {
		res, err := c.Transfer(ctx, recipient, "0.5")
		require.NoError(t, err)
		require.NotNil(t, sent)
		assert.Equal(t, sent.Signatures[0].String(), res.Signature)
		assert.Equal(t, uint64(500_000_000), res.Lamports)

		notice, err := c.Notice(ctx)
		require.NoError(t, err)
		assert.True(t, notice.Visible)
		assert.Contains(t, notice.Status, "Transaction confirmed!")

		events := publisher.GetPublishedEventsForWallet(kp.PublicKey().String())
		require.Len(t, events, 1)
		assert.Equal(t, natspkg.KindTransfer, events[0].Kind)
		assert.Equal(t, natspkg.OutcomeConfirmed, events[0].Outcome)
	})

	t.Run("disconnect", func(t *testing.T) {
		session, err := c.Disconnect(ctx)
		require.NoError(t, err)
		assert.False(t, session.Connected)

		notice, err := c.Notice(ctx)
		require.NoError(t, err)
		assert.False(t, notice.Visible)

		state, err := c.MessageState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "idle", state.State)
	})
}
