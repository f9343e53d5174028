package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/connection"
	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/model"
)

var (
	// ErrClosed is returned when the aggregator was torn down.
	ErrClosed = errors.New("market aggregator closed")

	// ErrAlreadyLoaded is returned by a second Load.
	ErrAlreadyLoaded = errors.New("market already loaded")
)

// MarketSource fetches a market with its products.
type MarketSource interface {
	GetMarket(ctx context.Context, id string) (model.Market, error)
}

// FeedSource opens change feeds.
type FeedSource interface {
	Subscribe(ctx context.Context, query string, variables map[string]any) (connection.Feed, error)
}

// Config holds Aggregator configuration.
type Config struct {
	// ChangeBuffer is the capacity of the Changes channel. Changes are
	// dropped when nobody drains it.
	ChangeBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ChangeBuffer: 64}
}

// Change is emitted after every applied feed event.
type Change struct {
	MarketID string
	Kind     Kind
	Outcome  Outcome
	Product  model.Product
}

// feedSpec pairs a subscription document with its payload field.
type feedSpec struct {
	kind  Kind
	query string
	field string
}

var feedSpecs = []feedSpec{
	{KindCreate, api.OnCreateProduct, api.FieldOnCreateProduct},
	{KindUpdate, api.OnUpdateProduct, api.FieldOnUpdateProduct},
	{KindDelete, api.OnDeleteProduct, api.FieldOnDeleteProduct},
}

// Aggregator holds one market and its live product list.
type Aggregator struct {
	cfg     Config
	markets MarketSource
	feeds   FeedSource
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	market model.Market
	loaded bool
	closed bool
	subs   []connection.Feed

	changes chan Change

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAggregator creates an Aggregator. m may be nil.
func NewAggregator(cfg Config, markets MarketSource, feeds FeedSource, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChangeBuffer <= 0 {
		cfg.ChangeBuffer = DefaultConfig().ChangeBuffer
	}
	return &Aggregator{
		cfg:     cfg,
		markets: markets,
		feeds:   feeds,
		metrics: m,
		logger:  logger,
		changes: make(chan Change, cfg.ChangeBuffer),
	}
}

// Load fetches the market and opens the three product feeds. The feeds are
// opened concurrently; if any fails the others are cancelled.
func (a *Aggregator) Load(ctx context.Context, marketID string) (model.Market, error) {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return model.Market{}, ErrClosed
	case a.loaded:
		a.mu.Unlock()
		return model.Market{}, ErrAlreadyLoaded
	}
	a.loaded = true
	a.mu.Unlock()

	market, err := a.markets.GetMarket(ctx, marketID)
	if err != nil {
		a.unload()
		return model.Market{}, fmt.Errorf("load market %s: %w", marketID, err)
	}

	subs, err := a.subscribe(ctx)
	if err != nil {
		a.unload()
		return model.Market{}, fmt.Errorf("load market %s: %w", marketID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		cancelAll(subs)
		return model.Market{}, ErrClosed
	}
	a.market = market
	a.subs = subs
	a.cancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.run(runCtx, subs)
	}()

	a.logger.Info("market loaded",
		"market_id", market.ID,
		"name", market.Name,
		"products", len(market.Products),
	)
	return cloneMarket(market), nil
}

// unload lets a failed Load be retried.
func (a *Aggregator) unload() {
	a.mu.Lock()
	a.loaded = false
	a.mu.Unlock()
}

// subscribe opens one feed per feedSpec. On failure every opened feed is
// cancelled.
func (a *Aggregator) subscribe(ctx context.Context) ([]connection.Feed, error) {
	subs := make([]connection.Feed, len(feedSpecs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range feedSpecs {
		g.Go(func() error {
			f, err := a.feeds.Subscribe(gctx, spec.query, nil)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", spec.field, err)
			}
			subs[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cancelAll(subs)
		return nil, err
	}
	return subs, nil
}

// run is the single writer. It merges the feeds and applies each event.
func (a *Aggregator) run(ctx context.Context, subs []connection.Feed) {
	chans := make([]<-chan json.RawMessage, len(subs))
	for i, f := range subs {
		chans[i] = f.Events()
	}
	open := len(chans)

	for open > 0 {
		var (
			data json.RawMessage
			ok   bool
			i    int
		)
		select {
		case <-ctx.Done():
			return
		case data, ok = <-chans[0]:
			i = 0
		case data, ok = <-chans[1]:
			i = 1
		case data, ok = <-chans[2]:
			i = 2
		}

		if !ok {
			chans[i] = nil
			open--
			if err := subs[i].Err(); err != nil {
				a.logger.Warn("product feed closed", "feed", feedSpecs[i].field, "error", err)
			}
			continue
		}
		a.handle(feedSpecs[i], data)
	}
}

func (a *Aggregator) handle(spec feedSpec, data json.RawMessage) {
	p, err := api.DecodeSubscriptionProduct(data, spec.field)
	if err != nil {
		a.logger.Warn("dropping undecodable feed event", "feed", spec.field, "error", err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	marketID := a.market.ID
	if p.MarketID != "" && p.MarketID != marketID {
		a.mu.Unlock()
		a.metrics.ReconcileEvent(string(spec.kind), string(OutcomeIgnored))
		return
	}
	if p.MarketID == "" {
		p.MarketID = marketID
	}
	var outcome Outcome
	a.market.Products, outcome = Apply(a.market.Products, spec.kind, p)
	a.mu.Unlock()

	a.metrics.ReconcileEvent(string(spec.kind), string(outcome))
	a.logger.Debug("applied product event",
		"market_id", marketID,
		"product_id", p.ID,
		"kind", spec.kind,
		"outcome", outcome,
	)

	select {
	case a.changes <- Change{MarketID: marketID, Kind: spec.kind, Outcome: outcome, Product: p}:
	default:
		a.logger.Debug("change channel full, dropping notification", "market_id", marketID, "product_id", p.ID)
	}
}

// Market returns a snapshot of the market and its products.
func (a *Aggregator) Market() (model.Market, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.market.ID == "" {
		return model.Market{}, false
	}
	return cloneMarket(a.market), true
}

// Changes delivers applied events. It is closed by Close.
func (a *Aggregator) Changes() <-chan Change {
	return a.changes
}

// IsOwner reports whether ident owns the loaded market.
func (a *Aggregator) IsOwner(ident model.Identity) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.market.ID != "" && ident.Owns(a.market.Owner)
}

// CanAddProducts reports whether ident may list products here: the owner,
// with a verified email.
func (a *Aggregator) CanAddProducts(ident model.Identity) bool {
	return a.IsOwner(ident) && ident.EmailVerified()
}

// Close cancels the three feeds and stops the writer. When Close returns no
// further event will touch the product list. Safe to call more than once.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	subs := a.subs
	a.subs = nil
	cancel := a.cancel
	marketID := a.market.ID
	a.mu.Unlock()

	errs := cancelAll(subs)
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	close(a.changes)

	a.logger.Debug("market aggregator closed", "market_id", marketID)
	return errors.Join(errs...)
}

func cancelAll(subs []connection.Feed) []error {
	var errs []error
	for _, f := range subs {
		if f == nil {
			continue
		}
		if err := f.Cancel(); err != nil {
			errs = append(errs, fmt.Errorf("cancel feed %s: %w", f.ID(), err))
		}
	}
	return errs
}

func cloneMarket(m model.Market) model.Market {
	m.Tags = append([]string(nil), m.Tags...)
	m.Products = append([]model.Product(nil), m.Products...)
	return m
}
