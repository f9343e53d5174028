// Package catalog implements market search and market creation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/view"
)

var (
	// ErrSuperseded is returned by Search when a newer search or a clear
	// replaced it before its response arrived. The result was dropped.
	ErrSuperseded = errors.New("search superseded")

	// ErrNotSignedIn is returned when an operation needs an owner.
	ErrNotSignedIn = errors.New("not signed in")
)

// MarketService is the catalog data service as seen by this package.
type MarketService interface {
	SearchMarkets(ctx context.Context, term string) ([]model.Market, error)
	CreateMarket(ctx context.Context, input api.CreateMarketInput) (model.Market, error)
}

// State is a snapshot of the search screen.
type State struct {
	Term      string
	Results   []model.Market
	Searching bool
}

// Catalog holds the search term and results.
type Catalog struct {
	markets  MarketService
	notifier view.Notifier
	metrics  *metrics.Metrics
	tags     []string
	logger   *slog.Logger

	mu        sync.Mutex
	gen       uint64
	term      string
	results   []model.Market
	searching bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithNotifier routes failures to the user.
func WithNotifier(n view.Notifier) Option {
	return func(c *Catalog) {
		c.notifier = n
	}
}

// WithMetrics counts discarded searches.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// WithTags sets the tag suggestions offered when creating a market.
func WithTags(tags []string) Option {
	return func(c *Catalog) {
		c.tags = append([]string(nil), tags...)
	}
}

// New creates a Catalog.
func New(markets MarketService, logger *slog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		markets:  markets,
		notifier: view.NotifierFunc(func(view.Notice) {}),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs a market search for term, newest first. An empty term clears
// the results without calling the service. If another Search or Clear
// happens while this one is in flight, the response is dropped and
// ErrSuperseded returned.
func (c *Catalog) Search(ctx context.Context, term string) ([]model.Market, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		c.Clear()
		return nil, nil
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.term = term
	c.searching = true
	c.mu.Unlock()

	markets, err := c.markets.SearchMarkets(ctx, term)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.metrics.SearchDiscarded()
		c.logger.Debug("dropping stale search result", "term", term)
		return nil, ErrSuperseded
	}
	c.searching = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("market search failed", "term", term, "error", err)
		c.notifier.Notify(view.Error("Error", api.UserMessage(err, "Error searching markets")))
		return nil, err
	}
	c.results = markets
	c.mu.Unlock()

	c.logger.Debug("market search completed", "term", term, "results", len(markets))
	return markets, nil
}

// Clear resets term and results. Any in-flight search is superseded.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.term = ""
	c.results = nil
	c.searching = false
}

// State returns the current search state.
func (c *Catalog) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Term:      c.term,
		Results:   append([]model.Market(nil), c.results...),
		Searching: c.searching,
	}
}

// CreateMarket creates a market owned by the signed-in user. Duplicate tags
// are collapsed.
func (c *Catalog) CreateMarket(ctx context.Context, owner model.Identity, name string, tags []string) (model.Market, error) {
	if owner.Username == "" {
		return model.Market{}, fmt.Errorf("create market: %w", ErrNotSignedIn)
	}

	m, err := c.markets.CreateMarket(ctx, api.CreateMarketInput{
		Name:  strings.TrimSpace(name),
		Owner: owner.Username,
		Tags:  uniqueTags(tags),
	})
	if err != nil {
		c.notifier.Notify(view.Error("Error", api.UserMessage(err, "Error adding market")))
		return model.Market{}, err
	}

	c.logger.Info("created market", "market_id", m.ID, "owner", m.Owner)
	return m, nil
}

// FilterTags returns the configured tags containing query, ignoring case.
func (c *Catalog) FilterTags(query string) []string {
	return FilterTags(c.tags, query)
}

// FilterTags returns the tags containing query, ignoring case, in their
// original order.
func FilterTags(tags []string, query string) []string {
	q := strings.ToLower(query)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			out = append(out, t)
		}
	}
	return out
}

func uniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
