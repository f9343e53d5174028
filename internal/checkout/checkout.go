// Package checkout runs one purchase: collect a payment token, charge it
// remotely, and on success persist the order and tell the buyer.
//
// A Checkout is single use:
//
//	Idle -> TokenCollected -> Charging -> Succeeded | Failed
//
// Start a new Checkout for every attempt.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/view"
)

const (
	successDuration = 3 * time.Second
	reminderMessage = "Check your verified email for order details"
	fallbackMessage = "Error processing order"
	homePath        = "/"
)

// ErrInvalidTransition is returned when an operation does not fit the
// current state.
var ErrInvalidTransition = errors.New("invalid checkout transition")

// DeclinedError is returned when the processor answered but did not report
// the charge as succeeded.
type DeclinedError struct {
	Status  string
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("charge not succeeded: status %q", e.Status)
}

// RemoteMessage returns the processor's message.
func (e *DeclinedError) RemoteMessage() string {
	return e.Message
}

// Token is what the payment widget hands back.
type Token struct {
	ID    string
	Email string
}

// UserDirectory looks up users, used for the seller's email.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Charger invokes the remote charge endpoint.
type Charger interface {
	Charge(ctx context.Context, req api.ChargeRequest) (*api.ChargeResult, error)
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, buyerID, productID string, shipping *model.ShippingAddress) (model.Order, error)
}

// Recorder receives every finished attempt. Record must not block.
type Recorder interface {
	Record(a Attempt)
}

// Attempt summarizes a finished checkout.
type Attempt struct {
	ID         string
	ProductID  string
	BuyerID    string
	Amount     int64
	Currency   string
	State      State
	ChargeID   string
	OrderID    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Config holds checkout configuration.
type Config struct {
	Currency         string
	RedirectDelay    time.Duration
	ReminderDuration time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:         "USD",
		RedirectDelay:    3 * time.Second,
		ReminderDuration: 5 * time.Second,
	}
}

// Deps are the collaborators of a Checkout. Recorder, Metrics, Scope and
// Logger are optional.
type Deps struct {
	Users     UserDirectory
	Charger   Charger
	Orders    OrderStore
	Notifier  view.Notifier
	Navigator view.Navigator
	Scope     *view.Scope
	Recorder  Recorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Checkout is one purchase attempt of product by buyer.
type Checkout struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	id      string
	product model.Product
	buyer   model.Identity
	started time.Time

	mu    sync.Mutex
	state State
	token Token
	order *model.Order
	err   error
}

// New creates an idle Checkout.
func New(cfg Config, deps Deps, product model.Product, buyer model.Identity) *Checkout {
	def := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = def.RedirectDelay
	}
	if cfg.ReminderDuration <= 0 {
		cfg.ReminderDuration = def.ReminderDuration
	}
	if deps.Scope == nil {
		deps.Scope = view.NewScope()
	}
	if deps.Notifier == nil {
		deps.Notifier = view.NotifierFunc(func(view.Notice) {})
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Checkout{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("checkout_id", id, "product_id", product.ID),
		id:      id,
		product: product,
		buyer:   buyer,
		state:   StateIdle,
	}
}

// ID returns the attempt id.
func (c *Checkout) ID() string { return c.id }

// State returns the current state.
func (c *Checkout) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Order returns the persisted order once the checkout succeeded.
func (c *Checkout) Order() (model.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.order == nil {
		return model.Order{}, false
	}
	return *c.order, true
}

// Err returns why the checkout failed.
func (c *Checkout) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CollectToken moves Idle to TokenCollected.
func (c *Checkout) CollectToken(tok Token) error {
	if strings.TrimSpace(tok.ID) == "" {
		return fmt.Errorf("collect token: empty token: %w", api.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("collect token in state %s: %w", c.state, ErrInvalidTransition)
	}
	c.token = tok
	c.state = StateTokenCollected
	c.started = time.Now()
	return nil
}

// Pay collects tok and charges it.
func (c *Checkout) Pay(ctx context.Context, tok Token) (model.Order, error) {
	if err := c.CollectToken(tok); err != nil {
		return model.Order{}, err
	}
	return c.Charge(ctx)
}

// Charge runs TokenCollected -> Charging -> Succeeded | Failed.
//
// The charge and the order write are not cancelled by ctx once started, so
// leaving the page cannot strand a collected payment without its order.
// Closing the scope suppresses the notices and the redirect.
func (c *Checkout) Charge(ctx context.Context) (model.Order, error) {
	c.mu.Lock()
	if c.state != StateTokenCollected {
		state := c.state
		c.mu.Unlock()
		return model.Order{}, fmt.Errorf("charge in state %s: %w", state, ErrInvalidTransition)
	}
	c.state = StateCharging
	tok := c.token
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	order, chargeID, err := c.charge(ctx, tok)
	if err != nil {
		c.fail(chargeID, err)
		return model.Order{}, err
	}
	c.succeed(order, chargeID)
	return order, nil
}

func (c *Checkout) charge(ctx context.Context, tok Token) (model.Order, string, error) {
	buyerID := c.buyer.Subject()
	if buyerID == "" {
		return model.Order{}, "", fmt.Errorf("checkout: buyer has no subject id: %w", api.ErrInvalidInput)
	}

	ownerEmail := c.ownerEmail(ctx)
	customerEmail := c.buyer.Email()
	if customerEmail == "" {
		customerEmail = tok.Email
	}

	result, err := c.deps.Charger.Charge(ctx, api.ChargeRequest{
		Token:   tok.ID,
		Shipped: c.product.Shipped,
		Charge: api.ChargeDetails{
			Currency:    c.cfg.Currency,
			Amount:      c.product.Price,
			Description: c.product.Description,
		},
		Email: api.ChargeEmail{
			CustomerEmail: customerEmail,
			OwnerEmail:    ownerEmail,
		},
	})
	if err != nil {
		return model.Order{}, "", err
	}
	if !result.Succeeded() {
		return model.Order{}, result.Charge.ID, &DeclinedError{Status: result.Charge.Status, Message: result.Message}
	}

	var shipping *model.ShippingAddress
	if c.product.Shipped {
		shipping = result.ShippingAddress()
	}

	order, err := c.deps.Orders.CreateOrder(ctx, buyerID, c.product.ID, shipping)
	if err != nil {
		c.logger.Error("charge succeeded but order was not saved", "charge_id", result.Charge.ID, "error", err)
		return model.Order{}, result.Charge.ID, err
	}

	c.deps.Scope.Do(func() {
		c.deps.Notifier.Notify(view.Success("Success", result.Message, successDuration))
	})
	return order, result.Charge.ID, nil
}

// ownerEmail resolves the seller's email. Failures are logged and an empty
// email is used.
func (c *Checkout) ownerEmail(ctx context.Context) string {
	if c.deps.Users == nil || c.product.Owner == "" {
		return ""
	}
	owner, err := c.deps.Users.GetUser(ctx, c.product.Owner)
	if err != nil {
		c.logger.Warn("error fetching product owner's email", "owner", c.product.Owner, "error", err)
		return ""
	}
	return owner.Email
}

func (c *Checkout) succeed(order model.Order, chargeID string) {
	c.mu.Lock()
	c.state = StateSucceeded
	c.order = &order
	c.mu.Unlock()

	c.logger.Info("checkout succeeded", "order_id", order.ID, "charge_id", chargeID, "amount", c.product.Price)
	c.finish(StateSucceeded, chargeID, order.ID, nil)

	c.deps.Scope.After(c.cfg.RedirectDelay, func() {
		if c.deps.Navigator != nil {
			c.deps.Navigator.Navigate(homePath)
		}
		c.deps.Scope.Do(func() {
			c.deps.Notifier.Notify(view.Info("", reminderMessage, c.cfg.ReminderDuration))
		})
	})
}

func (c *Checkout) fail(chargeID string, err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.err = err
	c.mu.Unlock()

	c.logger.Error("checkout failed", "kind", api.KindOf(err), "error", err)
	c.finish(StateFailed, chargeID, "", err)

	c.deps.Scope.Do(func() {
		c.deps.Notifier.Notify(view.Error("Error", api.UserMessage(err, fallbackMessage)))
	})
}

func (c *Checkout) finish(state State, chargeID, orderID string, err error) {
	c.deps.Metrics.CheckoutOutcome(state.String())
	if c.deps.Recorder == nil {
		return
	}
	a := Attempt{
		ID:         c.id,
		ProductID:  c.product.ID,
		BuyerID:    c.buyer.Subject(),
		Amount:     c.product.Price,
		Currency:   c.cfg.Currency,
		State:      state,
		ChargeID:   chargeID,
		OrderID:    orderID,
		StartedAt:  c.started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	c.deps.Recorder.Record(a)
}
