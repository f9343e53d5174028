// Package profile manages the signed-in user's account: email changes with
// verification, account deletion and order history.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/view"
)

// DeletePrompt is shown before an account is deleted.
const DeletePrompt = "This will permanently delete your account. Continue?"

// Account is the identity-service side of the profile.
type Account interface {
	UpdateUserAttributes(ctx context.Context, attrs map[string]string) error
	RequestAttributeVerification(ctx context.Context, attr string) error
	VerifyAttribute(ctx context.Context, attr, code string) error
	DeleteUser(ctx context.Context) error
}

// OrderLister lists a buyer's orders.
type OrderLister interface {
	ListOrders(ctx context.Context, buyerID string) ([]model.Order, error)
}

// Config holds Manager configuration.
type Config struct {
	// ReloadDelay is how long after a successful verification the page
	// reloads.
	ReloadDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ReloadDelay: 3 * time.Second}
}

// Deps are the collaborators of a Manager. Scope and Logger are optional.
type Deps struct {
	Account  Account
	Orders   OrderLister
	Notifier view.Notifier
	Reloader view.Reloader
	Scope    *view.Scope
	Logger   *slog.Logger
}

// Manager backs the profile page.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu           sync.Mutex
	pendingEmail string
}

// New creates a Manager.
func New(cfg Config, deps Deps) *Manager {
	if cfg.ReloadDelay <= 0 {
		cfg.ReloadDelay = DefaultConfig().ReloadDelay
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
	return &Manager{cfg: cfg, deps: deps, logger: logger}
}

// PendingVerification returns the email awaiting a verification code.
func (m *Manager) PendingVerification() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingEmail, m.pendingEmail != ""
}

// UpdateEmail changes the email attribute and asks the identity service to
// send a verification code to it.
func (m *Manager) UpdateEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		m.notify(view.Error("Error", fmt.Sprintf("%q is not a valid email address", email)))
		return fmt.Errorf("update email: %w", api.ErrInvalidInput)
	}

	if err := m.deps.Account.UpdateUserAttributes(ctx, map[string]string{model.AttrEmail: email}); err != nil {
		m.logger.Error("failed to update email", "error", err)
		m.notify(view.Error("Error", api.UserMessage(err, "Error updating email")))
		return fmt.Errorf("update email: %w", err)
	}

	if err := m.deps.Account.RequestAttributeVerification(ctx, model.AttrEmail); err != nil {
		m.logger.Error("failed to send verification code", "error", err)
		m.notify(view.Error("Error", api.UserMessage(err, "Error sending verification code")))
		return fmt.Errorf("request email verification: %w", err)
	}

	m.mu.Lock()
	m.pendingEmail = email
	m.mu.Unlock()

	m.notify(view.Info("", "Verification code sent to "+email, 0))
	return nil
}

// SubmitVerificationCode completes email verification and reloads the page
// after the configured delay.
func (m *Manager) SubmitVerificationCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("verify email: code is required: %w", api.ErrInvalidInput)
	}

	if err := m.deps.Account.VerifyAttribute(ctx, model.AttrEmail, code); err != nil {
		m.logger.Warn("email verification failed", "error", err)
		m.notify(view.Error("Error", api.UserMessage(err, "Error updating email")))
		return fmt.Errorf("verify email: %w", err)
	}

	m.mu.Lock()
	m.pendingEmail = ""
	m.mu.Unlock()

	m.notify(view.Success("Success", "Email successfully verified!", 0))
	m.deps.Scope.After(m.cfg.ReloadDelay, func() {
		if m.deps.Reloader != nil {
			m.deps.Reloader.Reload()
		}
	})
	return nil
}

// DeleteProfile asks confirm before deleting the account. It reports
// whether the account was deleted. A declined or failed confirmation
// leaves everything untouched.
func (m *Manager) DeleteProfile(ctx context.Context, confirm view.Confirmer) (bool, error) {
	ok, err := confirm.Confirm(ctx, DeletePrompt)
	if err != nil || !ok {
		if err != nil {
			m.logger.Debug("delete confirmation aborted", "error", err)
		}
		m.notify(view.Info("", "Delete canceled", 0))
		return false, nil
	}

	if err := m.deps.Account.DeleteUser(ctx); err != nil {
		m.logger.Error("failed to delete profile", "error", err)
		m.notify(view.Error("Error", api.UserMessage(err, "Error deleting profile")))
		return false, fmt.Errorf("delete profile: %w", err)
	}

	m.logger.Info("profile deleted")
	return true, nil
}

// ListOrders returns buyerID's orders, newest first.
func (m *Manager) ListOrders(ctx context.Context, buyerID string) ([]model.Order, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("list orders: buyer id is required: %w", api.ErrInvalidInput)
	}
	orders, err := m.deps.Orders.ListOrders(ctx, buyerID)
	if err != nil {
		m.logger.Error("failed to list orders", "buyer_id", buyerID, "error", err)
		m.notify(view.Error("Error", api.UserMessage(err, "Error loading orders")))
		return nil, err
	}
	return orders, nil
}

func (m *Manager) notify(n view.Notice) {
	m.deps.Scope.Do(func() { m.deps.Notifier.Notify(n) })
}
