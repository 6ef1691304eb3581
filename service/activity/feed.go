// Package activity pages through the transaction history of one account.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the number of signatures requested per page.
const DefaultPageSize = 5

// DefaultDetailConcurrency bounds detail lookups running at once.
const DefaultDetailConcurrency = 5

// Status is the outcome of a transaction.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// NotAvailable is shown for a fee when the transaction detail is missing.
const NotAvailable = "N/A"

// Summary is one entry of the feed.
type Summary struct {
	Signature   solanago.Signature
	Slot        uint64
	BlockTime   *time.Time
	FeeLamports *uint64 // nil when the detail record was unavailable
	Status      Status
	Memo        *string
	Transfer    *solana.Transfer
}

// Fee returns the fee in SOL and whether it is known.
func (s Summary) Fee() (decimal.Decimal, bool) {
	if s.FeeLamports == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromUint64(*s.FeeLamports).Shift(-9), true
}

// FeeString renders the fee with six decimals, or "N/A".
func (s Summary) FeeString() string {
	fee, ok := s.Fee()
	if !ok {
		return NotAvailable
	}
	return fee.StringFixed(6)
}

// Page is the result of one LoadMore call.
type Page struct {
	Entries   []Summary // entries appended by this call
	Exhausted bool
}

// Ledger is the subset of the ledger client the feed reads from.
type Ledger interface {
	Signatures(ctx context.Context, address solanago.PublicKey, limit int, before *solanago.Signature) ([]solana.SignatureInfo, error)
	TransactionDetail(ctx context.Context, sig solanago.Signature) (*solana.TransactionDetail, error)
}

// Config tunes a Feed. Zero values select the defaults.
type Config struct {
	PageSize          int
	DetailConcurrency int
}

// Feed is the growing, ordered activity sequence for one identity.
//
// Page loads are serialized by fetchMu, which is held for the whole
// fetch-and-commit, so a second page is never requested before the
// previous one is appended. mu guards the accumulated state and is never
// held across I/O.
type Feed struct {
	ledger      Ledger
	owner       solanago.PublicKey
	pageSize    int
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger

	fetchMu sync.Mutex

	mu        sync.RWMutex
	items     []Summary
	seen      map[solanago.Signature]struct{}
	cursor    *solanago.Signature
	exhausted bool
	loading   bool
}

// NewFeed creates an empty feed for owner.
func NewFeed(ledger Ledger, owner solanago.PublicKey, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = DefaultDetailConcurrency
	}
	return &Feed{
		ledger:      ledger,
		owner:       owner,
		pageSize:    cfg.PageSize,
		concurrency: cfg.DetailConcurrency,
		metrics:     m,
		logger:      logger.With("wallet", owner.String()),
		seen:        make(map[solanago.Signature]struct{}),
	}
}

// Owner returns the identity this feed pages through.
func (f *Feed) Owner() solanago.PublicKey { return f.owner }

// Items returns a copy of the accumulated sequence.
func (f *Feed) Items() []Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Summary, len(f.items))
	copy(out, f.items)
	return out
}

// Exhausted reports whether an empty page has been seen since the last reset.
func (f *Feed) Exhausted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.exhausted
}

// Loading reports whether a page fetch is in flight.
func (f *Feed) Loading() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loading
}

// Cursor returns the signature the next page is fetched before, or nil
// before the first page.
func (f *Feed) Cursor() *solanago.Signature {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cursor == nil {
		return nil
	}
	c := *f.cursor
	return &c
}

// LoadMore fetches and appends the next page. Once the feed is exhausted it
// returns an Exhausted error without touching the network. A failure of the
// signatures query aborts the page and leaves the feed unchanged.
func (f *Feed) LoadMore(ctx context.Context) (Page, error) {
	f.fetchMu.Lock()
	defer f.fetchMu.Unlock()
	return f.loadLocked(ctx)
}

// Reset clears the sequence, cursor and exhausted flag, then loads the
// first page.
func (f *Feed) Reset(ctx context.Context) (Page, error) {
	f.fetchMu.Lock()
	defer f.fetchMu.Unlock()

	f.mu.Lock()
	f.items = nil
	f.seen = make(map[solanago.Signature]struct{})
	f.cursor = nil
	f.exhausted = false
	f.mu.Unlock()

	return f.loadLocked(ctx)
}

func (f *Feed) loadLocked(ctx context.Context) (Page, error) {
	f.mu.Lock()
	if f.exhausted {
		f.mu.Unlock()
		return Page{Exhausted: true}, errs.ErrExhausted
	}
	var before *solanago.Signature
	if f.cursor != nil {
		c := *f.cursor
		before = &c
	}
	f.loading = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.loading = false
		f.mu.Unlock()
	}()

	sigs, err := f.ledger.Signatures(ctx, f.owner, f.pageSize, before)
	if err != nil {
		f.record("error", 0)
		f.logger.ErrorContext(ctx, "error fetching transactions", "error", err)
		return Page{}, errs.Wrap(errs.KindNetworkFailure, "Failed to fetch transactions", err)
	}

	if len(sigs) == 0 {
		f.mu.Lock()
		f.exhausted = true
		f.mu.Unlock()
		f.record("exhausted", 0)
		f.logger.DebugContext(ctx, "activity feed exhausted")
		return Page{Exhausted: true}, nil
	}

	entries := f.summarize(ctx, sigs)
	if err := ctx.Err(); err != nil {
		f.record("error", 0)
		return Page{}, errs.Wrap(errs.KindNetworkFailure, "Failed to fetch transactions", err)
	}

	f.mu.Lock()
	appended := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if _, dup := f.seen[e.Signature]; dup {
			continue
		}
		f.seen[e.Signature] = struct{}{}
		f.items = append(f.items, e)
		appended = append(appended, e)
	}
	last := sigs[len(sigs)-1].Signature
	f.cursor = &last
	f.mu.Unlock()

	f.record("appended", len(appended))
	f.logger.DebugContext(ctx, "appended activity page",
		"fetched", len(sigs),
		"appended", len(appended),
		"cursor", last.String(),
	)
	return Page{Entries: appended}, nil
}

// summarize fetches details for every signature concurrently and joins them
// all before returning. A failed or missing detail degrades that entry to
// signature metadata only. Output order matches sigs.
func (f *Feed) summarize(ctx context.Context, sigs []solana.SignatureInfo) []Summary {
	out := make([]Summary, len(sigs))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, sig := range sigs {
		i, sig := i, sig
		g.Go(func() error {
			detail, err := f.ledger.TransactionDetail(ctx, sig.Signature)
			switch {
			case err != nil:
				f.placeholder("error")
				f.logger.WarnContext(ctx, "transaction detail unavailable, using metadata only",
					"signature", sig.Signature.String(),
					"error", err,
				)
			case detail == nil:
				f.placeholder("not_found")
			}
			out[i] = buildSummary(sig, detail)
			return nil
		})
	}
	// Detail failures degrade entries in place; no goroutine returns an error.
	g.Wait()

	return out
}

func buildSummary(sig solana.SignatureInfo, detail *solana.TransactionDetail) Summary {
	s := Summary{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		BlockTime: sig.BlockTime,
		Status:    StatusSuccess,
		Memo:      sig.Memo,
	}
	if sig.Failed() {
		s.Status = StatusFailed
	}
	if detail == nil {
		return s
	}

	fee := detail.Fee
	s.FeeLamports = &fee
	s.Transfer = detail.Transfer
	if detail.Failed() {
		s.Status = StatusFailed
	} else {
		s.Status = StatusSuccess
	}
	if s.BlockTime == nil {
		s.BlockTime = detail.BlockTime
	}
	if s.Memo == nil {
		s.Memo = detail.Memo
	}
	return s
}

func (f *Feed) record(outcome string, entries int) {
	if f.metrics != nil {
		f.metrics.RecordFeedPage(outcome, entries)
	}
}

func (f *Feed) placeholder(reason string) {
	if f.metrics != nil {
		f.metrics.RecordDetailPlaceholder(reason)
	}
}
