package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/solboard/service/config"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSolanaClient_LabelsMetricsWithNetwork(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	cfg := &config.Config{
		SolanaNetwork: config.NetworkMainnet,
		SolanaRPCURL:  "https://mainnet.helius-rpc.com/?api-key=SECRET123",
	}
	mock := &solana.MockRPCClient{
		GetBalanceFn: func(ctx context.Context, account solanago.PublicKey) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{Value: 1}, nil
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client := newSolanaClient(mock, cfg, m, logger)
	_, err := client.Balance(context.Background(), solanago.NewWallet().PublicKey())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	endpoints := 0
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				assert.NotContains(t, label.GetValue(), "SECRET123", family.GetName())
				if label.GetName() == "endpoint" {
					assert.Equal(t, config.NetworkMainnet, label.GetValue(), family.GetName())
					endpoints++
				}
			}
		}
	}
	assert.GreaterOrEqual(t, endpoints, 2, "calls and duration series carry the endpoint label")
}
