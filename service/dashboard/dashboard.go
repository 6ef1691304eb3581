// Package dashboard holds the session state of one connected account and
// composes the snapshot, activity, message and funds flows around it.
//
// Every identity change bumps a generation counter. Refreshes capture the
// generation before doing I/O and commit only if it still matches, so a
// late result for a previous identity is dropped instead of overwriting the
// current one.
package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brojonat/solboard/service/activity"
	"github.com/brojonat/solboard/service/auth"
	"github.com/brojonat/solboard/service/errs"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/snapshot"
	"github.com/brojonat/solboard/service/transfer"
	"github.com/brojonat/solboard/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
)

// Snapshots produces balances and holdings.
type Snapshots interface {
	Balance(ctx context.Context, owner solanago.PublicKey) (snapshot.Balance, error)
	Holdings(ctx context.Context, owner solanago.PublicKey) ([]snapshot.Holding, error)
}

// Funds moves SOL for the connected wallet.
type Funds interface {
	Airdrop(ctx context.Context, w wallet.Wallet, amount string) (transfer.Result, error)
	Transfer(ctx context.Context, w wallet.Wallet, recipient, amount string) (transfer.Result, error)
}

// Config tunes a Dashboard.
type Config struct {
	Feed   activity.Config
	Notice *transfer.Notice // nil creates one with the default duration
}

// Session describes the connected identity.
type Session struct {
	Connected    bool
	Address      string
	Wallet       string
	Capabilities wallet.Capabilities
	Balance      snapshot.Balance
	Generation   uint64
}

// ActivityView is the accumulated feed of the current identity.
type ActivityView struct {
	Owner     string
	Items     []activity.Summary
	Exhausted bool
	Loading   bool
}

// Dashboard is the explicit session object passed to every flow.
type Dashboard struct {
	snapshots Snapshots
	ledger    activity.Ledger
	funds     Funds
	feedCfg   activity.Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	wallet   wallet.Wallet
	gen      uint64
	seq      uint64
	balance  snapshot.Balance
	holdings []snapshot.Holding
	// sequence of the request that last wrote each field
	balanceSeq  uint64
	holdingsSeq uint64
	feed     *activity.Feed
	auth     *auth.Flow
	notice   *transfer.Notice
}

// New creates a disconnected Dashboard. If metrics is nil, no metrics will
// be recorded.
func New(snapshots Snapshots, ledger activity.Ledger, funds Funds, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Dashboard {
	notice := cfg.Notice
	if notice == nil {
		notice = transfer.NewNotice(transfer.DefaultNoticeDuration)
	}
	return &Dashboard{
		snapshots: snapshots,
		ledger:    ledger,
		funds:     funds,
		feedCfg:   cfg.Feed,
		metrics:   m,
		logger:    logger,
		balance:   snapshot.UnknownBalance(),
		auth:      auth.NewFlow(m, logger),
		notice:    notice,
	}
}

// Connect makes w the current identity, discards everything held for the
// previous one and fetches the new balance. A balance failure leaves the
// balance unknown and is returned alongside the session.
func (d *Dashboard) Connect(ctx context.Context, w wallet.Wallet) (Session, error) {
	if w == nil {
		return Session{}, errs.Invalidf("no wallet to connect")
	}

	d.mu.Lock()
	d.switchLocked(w)
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "wallet connected",
		"wallet", w.PublicKey().String(),
		"kind", w.Name(),
	)

	_, err := d.RefreshBalance(ctx)
	return d.Session(), err
}

// Disconnect clears the current identity.
func (d *Dashboard) Disconnect() Session {
	d.mu.Lock()
	prev := d.wallet
	d.switchLocked(nil)
	d.mu.Unlock()

	if prev != nil {
		d.logger.Info("wallet disconnected", "wallet", prev.PublicKey().String())
	}
	return d.Session()
}

func (d *Dashboard) switchLocked(w wallet.Wallet) {
	d.gen++
	d.wallet = w
	d.balance = snapshot.UnknownBalance()
	d.holdings = nil
	d.auth = auth.NewFlow(d.metrics, d.logger)
	d.notice.Clear()
	d.feed = nil
	if w != nil {
		d.feed = activity.NewFeed(d.ledger, w.PublicKey(), d.feedCfg, d.metrics, d.logger)
	}
}

// Close stops the notice timer.
func (d *Dashboard) Close() {
	d.notice.Close()
}

// Session returns the current identity and cached balance.
func (d *Dashboard) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Session{
		Connected:    d.wallet != nil,
		Capabilities: wallet.CapabilitiesOf(d.wallet),
		Balance:      d.balance,
		Generation:   d.gen,
	}
	if d.wallet != nil {
		s.Address = d.wallet.PublicKey().String()
		s.Wallet = d.wallet.Name()
	}
	return s
}

// Wallet returns the connected wallet, or nil.
func (d *Dashboard) Wallet() wallet.Wallet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wallet
}

type capture struct {
	wallet wallet.Wallet
	gen    uint64
	seq    uint64
	feed   *activity.Feed
	auth   *auth.Flow
}

func (d *Dashboard) capture() (capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wallet == nil {
		return capture{}, errs.ErrNotConnected
	}
	d.seq++
	return capture{wallet: d.wallet, gen: d.gen, seq: d.seq, feed: d.feed, auth: d.auth}, nil
}

// currentLocked reports whether c still describes the current identity.
// Otherwise the result is counted and logged as stale.
func (d *Dashboard) currentLocked(ctx context.Context, c capture, op string) bool {
	if c.gen == d.gen {
		return true
	}
	if d.metrics != nil {
		d.metrics.RecordStaleResult(op)
	}
	d.logger.DebugContext(ctx, "discarding stale result",
		"operation", op,
		"wallet", c.wallet.PublicKey().String(),
		"fetched_generation", c.gen,
		"current_generation", d.gen,
	)
	return false
}

// newerLocked reports whether c may overwrite a field last written by the
// request with sequence *applied, and records c as its writer. A response
// that loses the race to a later request for the same identity is dropped.
func (d *Dashboard) newerLocked(ctx context.Context, c capture, applied *uint64, op string) bool {
	if !d.currentLocked(ctx, c, op) {
		return false
	}
	if c.seq < *applied {
		if d.metrics != nil {
			d.metrics.RecordStaleResult(op)
		}
		d.logger.DebugContext(ctx, "discarding out of order result",
			"operation", op,
			"fetched_sequence", c.seq,
			"applied_sequence", *applied,
		)
		return false
	}
	*applied = c.seq
	return true
}

// RefreshBalance fetches the balance of the current identity. A result that
// arrives after an identity change, or after a later refresh has already
// landed, is discarded and the cached balance is returned instead.
func (d *Dashboard) RefreshBalance(ctx context.Context) (snapshot.Balance, error) {
	c, err := d.capture()
	if err != nil {
		return snapshot.UnknownBalance(), err
	}

	bal, err := d.snapshots.Balance(ctx, c.wallet.PublicKey())

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.newerLocked(ctx, c, &d.balanceSeq, "balance") {
		return d.balance, nil
	}
	d.balance = bal
	return bal, err
}

// Balance returns the cached balance without fetching.
func (d *Dashboard) Balance() snapshot.Balance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance
}

// RefreshHoldings recomputes the token holdings of the current identity.
// A failed refresh leaves the list empty.
func (d *Dashboard) RefreshHoldings(ctx context.Context) ([]snapshot.Holding, error) {
	c, err := d.capture()
	if err != nil {
		return nil, err
	}

	holdings, err := d.snapshots.Holdings(ctx, c.wallet.PublicKey())

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.newerLocked(ctx, c, &d.holdingsSeq, "holdings") {
		return cloneHoldings(d.holdings), nil
	}
	d.holdings = holdings
	return cloneHoldings(holdings), err
}

// Holdings returns the cached holdings without fetching.
func (d *Dashboard) Holdings() []snapshot.Holding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneHoldings(d.holdings)
}

func cloneHoldings(h []snapshot.Holding) []snapshot.Holding {
	out := make([]snapshot.Holding, len(h))
	copy(out, h)
	return out
}

// Activity returns the feed of the current identity.
func (d *Dashboard) Activity() (ActivityView, error) {
	c, err := d.capture()
	if err != nil {
		return ActivityView{}, err
	}
	return viewOf(c.feed), nil
}

func viewOf(f *activity.Feed) ActivityView {
	return ActivityView{
		Owner:     f.Owner().String(),
		Items:     f.Items(),
		Exhausted: f.Exhausted(),
		Loading:   f.Loading(),
	}
}

// LoadMoreActivity appends the next page to the current feed. A page that
// completes after an identity change belongs to a feed that is no longer
// current; an empty page is returned in its place.
func (d *Dashboard) LoadMoreActivity(ctx context.Context) (activity.Page, error) {
	return d.page(ctx, "activity_more", (*activity.Feed).LoadMore)
}

// ResetActivity clears the current feed and loads its first page.
func (d *Dashboard) ResetActivity(ctx context.Context) (activity.Page, error) {
	return d.page(ctx, "activity_reset", (*activity.Feed).Reset)
}

func (d *Dashboard) page(ctx context.Context, op string, load func(*activity.Feed, context.Context) (activity.Page, error)) (activity.Page, error) {
	c, err := d.capture()
	if err != nil {
		return activity.Page{}, err
	}

	page, err := load(c.feed, ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.currentLocked(ctx, c, op) {
		if d.feed == nil {
			return activity.Page{}, errs.ErrNotConnected
		}
		return activity.Page{Exhausted: d.feed.Exhausted()}, nil
	}
	return page, err
}

// SignMessage signs text with the current wallet.
func (d *Dashboard) SignMessage(ctx context.Context, text string) (auth.Record, error) {
	d.mu.Lock()
	w, flow := d.wallet, d.auth
	d.mu.Unlock()
	return flow.Sign(ctx, w, text)
}

// VerifyMessage checks the stored signature against the current identity.
// A non-nil text re-derives the message bytes from it.
func (d *Dashboard) VerifyMessage(text *string) (bool, error) {
	d.mu.Lock()
	w, flow := d.wallet, d.auth
	d.mu.Unlock()
	if text != nil {
		return flow.VerifyText(w, *text)
	}
	return flow.Verify(w)
}

// MessageState returns the sign/verify state of the current identity.
func (d *Dashboard) MessageState() auth.View {
	d.mu.Lock()
	flow := d.auth
	d.mu.Unlock()
	return flow.View()
}

// Airdrop requests an airdrop for the current wallet.
func (d *Dashboard) Airdrop(ctx context.Context, amount string) (transfer.Result, error) {
	c, err := d.capture()
	if err != nil {
		return transfer.Result{}, err
	}
	return d.funds.Airdrop(ctx, c.wallet, amount)
}

// Transfer sends SOL from the current wallet. Once the request reached the
// ledger, its outcome is shown in the notice unless the identity changed
// meanwhile.
func (d *Dashboard) Transfer(ctx context.Context, recipient, amount string) (transfer.Result, error) {
	c, err := d.capture()
	if err != nil {
		return transfer.Result{}, err
	}

	res, err := d.funds.Transfer(ctx, c.wallet, recipient, amount)

	d.mu.Lock()
	defer d.mu.Unlock()
	if res.Status != "" && d.currentLocked(ctx, c, "transfer") {
		d.notice.Show(res.Status)
	}
	return res, err
}

// Notice returns the transfer notice.
func (d *Dashboard) Notice() transfer.NoticeView {
	return d.notice.View()
}
