// Package app assembles the storefront screens from configuration and the
// shared clients: the catalog, the product form, checkout and the profile.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/catalog"
	"github.com/rickgao/storefront/internal/checkout"
	"github.com/rickgao/storefront/internal/config"
	"github.com/rickgao/storefront/internal/listing"
	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/profile"
	"github.com/rickgao/storefront/internal/storage"
	"github.com/rickgao/storefront/internal/view"
)

// Backend is the data service the screens share.
type Backend interface {
	catalog.MarketService
	checkout.Charger
	checkout.OrderStore
	checkout.UserDirectory
	listing.ProductCreator
	profile.OrderLister
	GetMarket(ctx context.Context, id string) (model.Market, error)
}

// Account is the signed-in user's identity provider account. It also
// vends the storage credentials uploads are signed with.
type Account interface {
	profile.Account
	listing.IdentityResolver
	aws.CredentialsProvider
}

// Sessions reports the current identity.
type Sessions interface {
	Current() (model.Identity, bool)
}

// Deps are the shared clients. Uploader, Notifier, Recorder, Metrics and
// Logger are optional; the uploader is built from the storage config when
// unset.
type Deps struct {
	Backend  Backend
	Account  Account
	Sessions Sessions
	Uploader listing.Uploader
	Notifier view.Notifier
	Recorder checkout.Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// App builds screens wired to the shared clients.
type App struct {
	cfg     *config.StorefrontConfig
	deps    Deps
	logger  *slog.Logger
	catalog *catalog.Catalog
}

// New creates an App.
func New(cfg *config.StorefrontConfig, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = view.NotifierFunc(func(view.Notice) {})
	}
	if deps.Uploader == nil {
		deps.Uploader = storage.NewUploader(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
		}, deps.Account, storage.WithMetrics(deps.Metrics), storage.WithLogger(logger))
	}

	return &App{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		catalog: catalog.New(deps.Backend, logger,
			catalog.WithNotifier(deps.Notifier),
			catalog.WithMetrics(deps.Metrics),
			catalog.WithTags(cfg.Catalog.Tags),
		),
	}
}

// Catalog returns the market search and creation screen. It is shared so
// a newer search supersedes an older one across callers.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// NewSubmitter returns a product form bound to scope.
func (a *App) NewSubmitter(scope *view.Scope) *listing.Submitter {
	return listing.NewSubmitter(
		listing.Config{Visibility: a.cfg.Storage.Visibility},
		a.deps.Uploader,
		a.deps.Backend,
		a.deps.Account,
		a.deps.Notifier,
		scope,
		a.logger,
	)
}

// NewCheckout starts a purchase of product by buyer. Finished attempts go
// to the recorder.
func (a *App) NewCheckout(product model.Product, buyer model.Identity, nav view.Navigator, scope *view.Scope) *checkout.Checkout {
	return checkout.New(checkout.Config{
		Currency:         a.cfg.Checkout.Currency,
		RedirectDelay:    a.cfg.Checkout.RedirectDelay,
		ReminderDuration: a.cfg.Checkout.ReminderDuration,
	}, checkout.Deps{
		Users:     a.deps.Backend,
		Charger:   a.deps.Backend,
		Orders:    a.deps.Backend,
		Notifier:  a.deps.Notifier,
		Navigator: nav,
		Scope:     scope,
		Recorder:  a.deps.Recorder,
		Metrics:   a.deps.Metrics,
		Logger:    a.logger,
	}, product, buyer)
}

// NewProfile returns the profile page bound to scope.
func (a *App) NewProfile(reloader view.Reloader, scope *view.Scope) *profile.Manager {
	return profile.New(profile.DefaultConfig(), profile.Deps{
		Account:  a.deps.Account,
		Orders:   a.deps.Backend,
		Notifier: a.deps.Notifier,
		Reloader: reloader,
		Scope:    scope,
		Logger:   a.logger,
	})
}

// Purchase buys productID from marketID as the current user.
func (a *App) Purchase(ctx context.Context, marketID, productID string, tok checkout.Token) (model.Order, error) {
	buyer, ok := a.currentIdentity()
	if !ok {
		return model.Order{}, fmt.Errorf("purchase: %w", catalog.ErrNotSignedIn)
	}

	mk, err := a.deps.Backend.GetMarket(ctx, marketID)
	if err != nil {
		return model.Order{}, fmt.Errorf("purchase: load market %s: %w", marketID, err)
	}
	for _, p := range mk.Products {
		if p.ID != productID {
			continue
		}
		if p.MarketID == "" {
			p.MarketID = mk.ID
		}
		return a.NewCheckout(p, buyer, nil, nil).Pay(ctx, tok)
	}
	return model.Order{}, fmt.Errorf("purchase: product %s in market %s: %w", productID, marketID, api.ErrNotFound)
}

// CreateMarket creates a market owned by the current user.
func (a *App) CreateMarket(ctx context.Context, name string, tags []string) (model.Market, error) {
	owner, _ := a.currentIdentity()
	return a.catalog.CreateMarket(ctx, owner, name, tags)
}

func (a *App) currentIdentity() (model.Identity, bool) {
	if a.deps.Sessions == nil {
		return model.Identity{}, false
	}
	return a.deps.Sessions.Current()
}
