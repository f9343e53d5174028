package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/auth"
	"github.com/rickgao/storefront/internal/bus"
	"github.com/rickgao/storefront/internal/model"
)

// IdentityProvider is the part of the identity service the manager reads.
type IdentityProvider interface {
	CurrentSession(ctx context.Context) (*auth.Session, error)
	UserAttributes(ctx context.Context) (map[string]string, error)
}

// UserRegistry looks up and creates backend user records.
type UserRegistry interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	RegisterUser(ctx context.Context, input api.RegisterUserInput) (model.User, error)
}

// Manager owns the current identity.
type Manager struct {
	provider IdentityProvider
	users    UserRegistry
	bus      *bus.Bus
	logger   *slog.Logger

	mu       sync.RWMutex
	identity *model.Identity
	gen      uint64 // bumped on every sign-out

	listener *bus.Listener
}

// NewManager creates a session manager. Call Start to begin following auth
// events.
func NewManager(provider IdentityProvider, users UserRegistry, b *bus.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		users:    users,
		bus:      b,
		logger:   logger,
	}
}

// Start registers the auth listener and loads any session that already
// exists. A missing session is not an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.listener != nil {
		m.mu.Unlock()
		return errors.New("session manager already started")
	}
	m.mu.Unlock()

	l, err := m.bus.Listen(ctx, auth.Topic, m.handle)
	if err != nil {
		return fmt.Errorf("listen for auth events: %w", err)
	}

	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()

	if err := m.load(ctx); err != nil && !errors.Is(err, auth.ErrNoSession) {
		m.logger.Warn("failed to load current session", "error", err)
	}
	return nil
}

// Stop unregisters the auth listener.
func (m *Manager) Stop() {
	m.mu.Lock()
	l := m.listener
	m.listener = nil
	m.mu.Unlock()

	if l != nil {
		l.Close()
	}
}

// Current returns the signed-in identity, if any.
func (m *Manager) Current() (model.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return model.Identity{}, false
	}
	return *m.identity, true
}

func (m *Manager) handle(ctx context.Context, msg *message.Message) error {
	ev, err := bus.Decode[auth.Event](msg)
	if err != nil {
		return err
	}
	return m.HandleEvent(ctx, ev)
}

// HandleEvent applies one auth transition.
func (m *Manager) HandleEvent(ctx context.Context, ev auth.Event) error {
	switch ev.Kind {
	case auth.EventSignedIn:
		if err := m.load(ctx); err != nil {
			return fmt.Errorf("signed-in %s: %w", ev.Username, err)
		}
		if ident, ok := m.Current(); ok {
			m.ensureRegistered(ctx, ident)
		}
		return nil

	case auth.EventSignedUp:
		m.logger.Info("user signed up", "username", ev.Username, "subject", ev.Subject)
		return nil

	case auth.EventSignedOut:
		m.mu.Lock()
		m.identity = nil
		m.gen++
		m.mu.Unlock()
		m.logger.Info("user signed out", "username", ev.Username)
		return nil

	default:
		m.logger.Debug("ignoring auth event", "kind", ev.Kind)
		return nil
	}
}

// load refreshes the identity from the provider.
func (m *Manager) load(ctx context.Context) error {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		return err
	}
	attrs, err := m.provider.UserAttributes(ctx)
	if err != nil {
		return fmt.Errorf("fetch attributes: %w", err)
	}
	ident := sess.Identity(attrs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// signed out while we were fetching
		return auth.ErrNoSession
	}
	m.identity = &ident
	m.logger.Debug("identity loaded", "username", ident.Username, "email_verified", ident.EmailVerified())
	return nil
}

// ensureRegistered creates the backend user record when it is missing.
// Failures are logged only.
func (m *Manager) ensureRegistered(ctx context.Context, ident model.Identity) {
	id := ident.Subject()
	if id == "" {
		m.logger.Warn("identity has no subject, skipping registration", "username", ident.Username)
		return
	}

	_, err := m.users.GetUser(ctx, id)
	if err == nil {
		return
	}
	if !errors.Is(err, api.ErrNotFound) {
		m.logger.Error("failed to look up user", "user_id", id, "error", err)
		return
	}

	user, err := m.users.RegisterUser(ctx, api.RegisterUserInput{
		ID:       id,
		Username: ident.Username,
		Email:    ident.Email(),
	})
	if err != nil {
		m.logger.Error("error registering new user", "user_id", id, "error", err)
		return
	}
	m.logger.Info("registered new user", "user_id", user.ID, "username", user.Username)
}
