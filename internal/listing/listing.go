// Package listing submits new products: upload the image, then record the
// product that references it.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/storage"
	"github.com/rickgao/storefront/internal/view"
)

// ErrIncomplete is returned when description, price or image is missing.
var ErrIncomplete = fmt.Errorf("description, price and image are required: %w", api.ErrInvalidInput)

// ErrBusy is returned when a submission is already running.
var ErrBusy = errors.New("a product submission is already in progress")

// Image is the picked image file.
type Image struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Draft is the product form.
type Draft struct {
	MarketID    string
	Description string
	Price       string // dollars, e.g. "19.99"
	Shipped     bool
	Image       *Image
}

// Ready reports whether the draft may be submitted.
func (d Draft) Ready() bool {
	return strings.TrimSpace(d.Description) != "" &&
		strings.TrimSpace(d.Price) != "" &&
		d.Image != nil && d.Image.Body != nil
}

// Uploader stores objects.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (model.FileRef, error)
}

// ProductCreator records products.
type ProductCreator interface {
	CreateProduct(ctx context.Context, input api.CreateProductInput) (model.Product, error)
}

// IdentityResolver returns the storage identity uploads are namespaced by.
type IdentityResolver interface {
	StorageIdentity(ctx context.Context) (string, error)
}

// Config holds Submitter configuration.
type Config struct {
	Visibility string
}

// Submitter runs product submissions for one form.
type Submitter struct {
	cfg        Config
	uploader   Uploader
	products   ProductCreator
	identities IdentityResolver
	notifier   view.Notifier
	scope      *view.Scope
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	uploading bool
	percent   int
}

// NewSubmitter creates a Submitter. scope may be nil; when set, notices
// are dropped once it closes.
func NewSubmitter(cfg Config, uploader Uploader, products ProductCreator, identities IdentityResolver,
	notifier view.Notifier, scope *view.Scope, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Visibility == "" {
		cfg.Visibility = "public"
	}
	return &Submitter{
		cfg:        cfg,
		uploader:   uploader,
		products:   products,
		identities: identities,
		notifier:   notifier,
		scope:      scope,
		logger:     logger,
		now:        time.Now,
	}
}

// Progress returns whether an upload is running and its percentage.
func (s *Submitter) Progress() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploading, s.percent
}

// Submit uploads the draft's image and creates the product. The product is
// only created after the upload succeeded.
func (s *Submitter) Submit(ctx context.Context, d Draft) (model.Product, error) {
	if !d.Ready() {
		return model.Product{}, ErrIncomplete
	}
	if d.MarketID == "" {
		return model.Product{}, fmt.Errorf("submit product: market id is required: %w", api.ErrInvalidInput)
	}
	cents, err := model.DollarsToCents(d.Price)
	if err == nil && cents <= 0 {
		err = fmt.Errorf("price must be positive: %w", api.ErrInvalidInput)
	}
	if err != nil {
		s.notify(view.Error("Error", fmt.Sprintf("Invalid price %q", d.Price)))
		return model.Product{}, fmt.Errorf("submit product: %w", err)
	}

	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return model.Product{}, ErrBusy
	}
	s.uploading = true
	s.percent = 0
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
	}()

	p, err := s.submit(ctx, d, cents)
	if err != nil {
		s.logger.Error("product submission failed", "market_id", d.MarketID, "error", err)
		s.notify(view.Error("Error", api.UserMessage(err, "Error adding product")))
		return model.Product{}, err
	}

	s.logger.Info("product created", "market_id", d.MarketID, "product_id", p.ID, "price", p.Price)
	s.notify(view.Success("Success", "Product successfully created!", 0))
	return p, nil
}

func (s *Submitter) submit(ctx context.Context, d Draft, cents int64) (model.Product, error) {
	identityID, err := s.identities.StorageIdentity(ctx)
	if err != nil {
		return model.Product{}, fmt.Errorf("resolve storage identity: %w", err)
	}

	key := storage.ObjectKey(s.cfg.Visibility, identityID, s.now(), d.Image.Name)
	file, err := s.uploader.Put(ctx, key, d.Image.Body, d.Image.Size, storage.PutOptions{
		ContentType: d.Image.ContentType,
		Progress: func(p storage.Progress) {
			s.mu.Lock()
			s.percent = p.Percent()
			s.mu.Unlock()
		},
	})
	if err != nil {
		return model.Product{}, fmt.Errorf("upload image: %w", err)
	}

	return s.products.CreateProduct(ctx, api.CreateProductInput{
		Description:     strings.TrimSpace(d.Description),
		Price:           cents,
		Shipped:         d.Shipped,
		ProductMarketID: d.MarketID,
		File:            api.S3Object{Key: file.Key, Bucket: file.Bucket, Region: file.Region},
	})
}

func (s *Submitter) notify(n view.Notice) {
	if s.notifier == nil {
		return
	}
	if s.scope == nil {
		s.notifier.Notify(n)
		return
	}
	s.scope.Do(func() { s.notifier.Notify(n) })
}
