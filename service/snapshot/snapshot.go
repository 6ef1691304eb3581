// Package snapshot builds the balance and token holdings view of one account.
package snapshot

import (
	"context"
	"log/slog"

	"github.com/brojonat/solboard/service/catalog"
	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Placeholder metadata for mints missing from the catalog.
const (
	UnknownTokenName   = "Unknown Token"
	UnknownTokenSymbol = "UNKNOWN"
	DefaultLogoURI     = "https://raw.githubusercontent.com/solana-labs/token-list/main/assets/mainnet/So11111111111111111111111111111111111111112/logo.png"
)

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = solanago.LAMPORTS_PER_SOL

// Balance is a native balance that may be unknown. An unknown balance
// never renders as zero.
type Balance struct {
	Lamports uint64
	Known    bool
}

// UnknownBalance is the value shown before a fetch succeeds.
func UnknownBalance() Balance { return Balance{} }

// KnownBalance wraps a fetched lamport amount.
func KnownBalance(lamports uint64) Balance {
	return Balance{Lamports: lamports, Known: true}
}

// SOL converts the balance to display units.
func (b Balance) SOL() decimal.Decimal {
	return LamportsToSOL(b.Lamports)
}

func (b Balance) String() string {
	if !b.Known {
		return "Fetching..."
	}
	return b.SOL().StringFixed(4) + " SOL"
}

// LamportsToSOL divides lamports by 10^9 without float rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// Holding is one token account joined to its catalog metadata.
type Holding struct {
	Mint     string
	Account  string
	Amount   uint64
	Decimals uint8
	Name     string
	Symbol   string
	LogoURI  string
	Listed   bool // false when the catalog had no entry for the mint
}

// UIAmount is Amount scaled by 10^Decimals.
func (h Holding) UIAmount() decimal.Decimal {
	return decimal.NewFromUint64(h.Amount).Shift(-int32(h.Decimals))
}

// Ledger is the subset of the ledger client the builder reads from.
type Ledger interface {
	Balance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	TokenAccounts(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenAccount, error)
}

// Catalog provides token metadata.
type Catalog interface {
	Fetch(ctx context.Context) (catalog.Index, error)
}

// Builder produces account snapshots.
type Builder struct {
	ledger  Ledger
	catalog Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder creates a Builder. If metrics is nil, no metrics will be recorded.
func NewBuilder(ledger Ledger, cat Catalog, m *metrics.Metrics, logger *slog.Logger) *Builder {
	return &Builder{ledger: ledger, catalog: cat, metrics: m, logger: logger}
}

// Balance fetches the native balance of owner. On failure it returns an
// unknown balance together with a NetworkFailure error.
func (b *Builder) Balance(ctx context.Context, owner solanago.PublicKey) (Balance, error) {
	lamports, err := b.ledger.Balance(ctx, owner)
	if b.metrics != nil {
		b.metrics.RecordSnapshotRefresh("balance", err)
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "error fetching balance",
			"wallet", owner.String(),
			"error", err,
		)
		return UnknownBalance(), errs.Wrap(errs.KindNetworkFailure, "Failed to fetch balance", err)
	}
	return KnownBalance(lamports), nil
}

// Holdings fetches every token account of owner and joins it to the
// catalog. The result is all-or-nothing: any failure returns nil and a
// single NetworkFailure error. Mints absent from the catalog keep
// placeholder metadata and are never dropped.
func (b *Builder) Holdings(ctx context.Context, owner solanago.PublicKey) ([]Holding, error) {
	var (
		accounts []solana.TokenAccount
		index    catalog.Index
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = b.ledger.TokenAccounts(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		index, err = b.catalog.Fetch(gctx)
		return err
	})
	err := g.Wait()
	if b.metrics != nil {
		b.metrics.RecordSnapshotRefresh("holdings", err)
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "error fetching token details",
			"wallet", owner.String(),
			"error", err,
		)
		return nil, errs.Wrap(errs.KindNetworkFailure, "Failed to fetch token details", err)
	}

	holdings := Join(accounts, index)
	if b.metrics != nil {
		b.metrics.RecordHoldings(len(holdings))
	}
	b.logger.DebugContext(ctx, "built token holdings",
		"wallet", owner.String(),
		"count", len(holdings),
	)
	return holdings, nil
}

// Join enriches token accounts with catalog metadata. Decimals always come
// from the token account. Output order follows the input order.
func Join(accounts []solana.TokenAccount, index catalog.Index) []Holding {
	holdings := make([]Holding, 0, len(accounts))
	for _, acct := range accounts {
		mint := acct.Mint.String()
		h := Holding{
			Mint:     mint,
			Account:  acct.Address.String(),
			Amount:   acct.Amount,
			Decimals: acct.Decimals,
			Name:     UnknownTokenName,
			Symbol:   UnknownTokenSymbol,
			LogoURI:  DefaultLogoURI,
		}
		if entry, ok := index.Lookup(mint); ok {
			h.Listed = true
			if entry.Name != "" {
				h.Name = entry.Name
			}
			if entry.Symbol != "" {
				h.Symbol = entry.Symbol
			}
			if entry.LogoURI != "" {
				h.LogoURI = entry.LogoURI
			}
		}
		holdings = append(holdings, h)
	}
	return holdings
}
