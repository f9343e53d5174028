package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Signer produces the authorization header object for the realtime endpoint.
type Signer interface {
	SignRealtime(ctx context.Context, host string) (map[string]string, error)
}

// Manager owns the realtime connection and multiplexes subscriptions on it.
type Manager interface {
	// Start connects and begins routing messages.
	Start(ctx context.Context) error

	// Stop closes every feed and the connection.
	Stop(ctx context.Context) error

	// Subscribe starts a subscription and waits for start_ack.
	Subscribe(ctx context.Context, query string, variables map[string]any) (Feed, error)

	// Stats returns current connection and subscription statistics.
	Stats() ManagerStats
}

// Feed is one live subscription. Events delivers the data object of each
// data message, e.g. {"onCreateProduct": {...}}. The channel closes when
// the feed is cancelled, completed by the server, or the connection drops.
type Feed interface {
	ID() string
	Events() <-chan json.RawMessage
	// Err reports why the feed closed; nil after Cancel or complete.
	Err() error
	// Cancel stops routing synchronously, closes Events and tells the
	// server to stop. Safe to call more than once.
	Cancel() error
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	signer Signer
	logger *slog.Logger

	client Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	feeds   map[string]*feed
	pending map[string]chan Message // start_ack / error correlation by subscription id
}

// NewManager creates a new subscription Manager. signer may be nil when
// an API key is configured.
func NewManager(cfg ManagerConfig, signer Signer, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultManagerConfig().SubscribeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultManagerConfig().BufferSize
	}

	return &manager{
		cfg:     cfg,
		signer:  signer,
		logger:  logger,
		feeds:   make(map[string]*feed),
		pending: make(map[string]chan Message),
	}
}

// Start connects to the realtime endpoint.
func (m *manager) Start(ctx context.Context) error {
	header, err := m.authorization(ctx)
	if err != nil {
		return fmt.Errorf("authorize realtime: %w", err)
	}
	u, err := RealtimeURL(m.cfg.URL, header)
	if err != nil {
		return err
	}

	clientCfg := DefaultClientConfig()
	clientCfg.URL = u
	clientCfg.KeepaliveTimeout = m.cfg.KeepaliveTimeout
	client := NewClient(clientCfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.wg.Add(1)
	go m.readLoop()

	m.logger.Info("subscription manager started", "url", m.cfg.URL)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping subscription manager")

	m.mu.Lock()
	cancel := m.cancel
	client := m.client
	feeds := m.feeds
	m.feeds = make(map[string]*feed)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, f := range feeds {
		f.close(nil)
	}

	var err error
	if client != nil {
		err = client.Close()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.logger.Info("subscription manager stopped", "feeds_closed", len(feeds))
	return err
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		Connected: m.client != nil && m.client.IsConnected(),
		Feeds:     len(m.feeds),
	}
}

func (m *manager) authorization(ctx context.Context) (map[string]string, error) {
	if m.signer != nil {
		return m.signer.SignRealtime(ctx, m.cfg.Host)
	}
	return map[string]string{"host": m.cfg.Host, "x-api-key": m.cfg.APIKey}, nil
}

// Subscribe sends a start message and waits for start_ack.
func (m *manager) Subscribe(ctx context.Context, query string, variables map[string]any) (Feed, error) {
	m.mu.Lock()
	client, mctx := m.client, m.ctx
	m.mu.Unlock()
	if client == nil || mctx == nil {
		return nil, ErrNotStarted
	}

	header, err := m.authorization(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorize subscription: %w", err)
	}
	request, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("marshal subscription: %w", err)
	}
	payload, err := json.Marshal(StartPayload{
		Data:       string(request),
		Extensions: StartExtensions{Authorization: header},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal start payload: %w", err)
	}

	id := uuid.NewString()
	f := newFeed(id, m, m.cfg.BufferSize)
	ackCh := make(chan Message, 1)

	// Register before sending so data right after start_ack is routed.
	m.mu.Lock()
	m.feeds[id] = f
	m.pending[id] = ackCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	data, _ := json.Marshal(Message{ID: id, Type: TypeStart, Payload: payload})
	if err := client.Send(data); err != nil {
		m.removeFeed(id)
		f.close(err)
		return nil, fmt.Errorf("send start: %w", err)
	}

	timer := time.NewTimer(m.cfg.SubscribeTimeout)
	defer timer.Stop()

	// Wait for response
	select {
	case <-ctx.Done():
		m.abandon(f)
		return nil, ctx.Err()
	case <-mctx.Done():
		m.abandon(f)
		return nil, ErrNotStarted
	case <-timer.C:
		m.abandon(f)
		return nil, ErrTimeout
	case <-f.done:
		// Connection dropped while waiting
		if err := f.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotConnected
	case resp := <-ackCh:
		if resp.Type == TypeError {
			perr := newProtocolError(resp)
			m.removeFeed(id)
			f.close(perr)
			return nil, perr
		}

		m.logger.Debug("subscribed", "id", id)
		return f, nil
	}
}

// abandon drops a feed whose start was never acknowledged.
func (m *manager) abandon(f *feed) {
	if m.removeFeed(f.id) {
		f.close(nil)
		m.sendStop(f.id)
	}
}

// removeFeed unregisters a feed; reports whether it was registered.
func (m *manager) removeFeed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.feeds[id]
	delete(m.feeds, id)
	return ok
}

func (m *manager) lookupFeed(id string) (*feed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[id]
	return f, ok
}

func (m *manager) sendStop(id string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return ErrNotStarted
	}
	data, _ := json.Marshal(Message{ID: id, Type: TypeStop})
	if err := client.Send(data); err != nil {
		return fmt.Errorf("send stop %s: %w", id, err)
	}
	return nil
}

// readLoop routes protocol messages from the connection.
func (m *manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-m.client.Errors():
			m.logger.Warn("realtime connection error", "error", err)
			m.failAll(fmt.Errorf("realtime connection lost: %w", err))
			return

		case raw, ok := <-m.client.Messages():
			if !ok {
				return
			}

			var msg Message
			if err := json.Unmarshal(raw.Data, &msg); err != nil {
				m.logger.Warn("undecodable realtime message", "error", err)
				continue
			}
			m.route(msg)
		}
	}
}

func (m *manager) route(msg Message) {
	switch msg.Type {
	case TypeStartAck, TypeError:
		m.mu.Lock()
		ch, ok := m.pending[msg.ID]
		if ok {
			delete(m.pending, msg.ID)
		}
		m.mu.Unlock()

		if ok {
			select {
			case ch <- msg:
			default:
			}
			return
		}
		if msg.Type == TypeError {
			// Error on an established subscription ends it
			if f, ok := m.lookupFeed(msg.ID); ok {
				m.removeFeed(msg.ID)
				f.close(newProtocolError(msg))
			} else {
				m.logger.Warn("realtime error", "error", newProtocolError(msg))
			}
		}

	case TypeData:
		f, ok := m.lookupFeed(msg.ID)
		if !ok {
			// Cancelled feed; the server has not processed stop yet
			return
		}
		var payload DataPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			m.logger.Warn("undecodable data payload", "id", msg.ID, "error", err)
			return
		}
		if len(payload.Errors) > 0 {
			m.logger.Warn("subscription data errors", "id", msg.ID, "error", payload.Errors[0].Message)
		}
		if len(payload.Data) == 0 || string(payload.Data) == "null" {
			return
		}
		f.deliver(m.ctx, payload.Data)

	case TypeComplete:
		if f, ok := m.lookupFeed(msg.ID); ok {
			m.removeFeed(msg.ID)
			f.close(nil)
		}

	case TypeConnectionError:
		m.logger.Warn("realtime connection error", "error", newProtocolError(msg))

	default:
		m.logger.Debug("unhandled realtime message", "type", msg.Type)
	}
}

// failAll closes every feed with err.
func (m *manager) failAll(err error) {
	m.mu.Lock()
	feeds := m.feeds
	m.feeds = make(map[string]*feed)
	m.mu.Unlock()

	for _, f := range feeds {
		f.close(err)
	}
}

// feed implements Feed.
type feed struct {
	id     string
	m      *manager
	events chan json.RawMessage
	done   chan struct{}

	closeOnce sync.Once
	sendMu    sync.Mutex // held while delivering; close waits for it

	errMu sync.Mutex
	err   error
}

func newFeed(id string, m *manager, buffer int) *feed {
	return &feed{
		id:     id,
		m:      m,
		events: make(chan json.RawMessage, buffer),
		done:   make(chan struct{}),
	}
}

func (f *feed) ID() string                     { return f.id }
func (f *feed) Events() <-chan json.RawMessage { return f.events }

func (f *feed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}

// Cancel implements Feed.
func (f *feed) Cancel() error {
	if !f.m.removeFeed(f.id) {
		f.close(nil)
		return nil
	}
	f.close(nil)
	return f.m.sendStop(f.id)
}

// deliver blocks until the event is buffered or the feed closes.
func (f *feed) deliver(ctx context.Context, data json.RawMessage) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	select {
	case <-f.done:
		return
	default:
	}

	select {
	case f.events <- data:
	case <-f.done:
	case <-ctx.Done():
	}
}

func (f *feed) close(err error) {
	f.closeOnce.Do(func() {
		f.errMu.Lock()
		f.err = err
		f.errMu.Unlock()

		close(f.done)

		f.sendMu.Lock()
		close(f.events)
		f.sendMu.Unlock()
	})
}
