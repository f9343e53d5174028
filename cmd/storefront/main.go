package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/app"
	"github.com/rickgao/storefront/internal/auth"
	"github.com/rickgao/storefront/internal/bus"
	"github.com/rickgao/storefront/internal/catalog"
	"github.com/rickgao/storefront/internal/checkout"
	"github.com/rickgao/storefront/internal/config"
	"github.com/rickgao/storefront/internal/connection"
	"github.com/rickgao/storefront/internal/database"
	"github.com/rickgao/storefront/internal/ledger"
	"github.com/rickgao/storefront/internal/market"
	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/session"
	"github.com/rickgao/storefront/internal/version"
	"github.com/rickgao/storefront/internal/view"
)

func main() {
	configPath := flag.String("config", "configs/storefront.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration before the logger so level and format apply
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting storefront",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"graphql_url", cfg.API.GraphQLURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()

	events := bus.New(logger)
	defer events.Close()

	notices, err := events.Listen(ctx, view.NoticeTopic, logNotice(logger))
	if err != nil {
		logger.Error("failed to listen for notices", "error", err)
		os.Exit(1)
	}
	defer notices.Close()

	authClient := auth.NewClient(auth.Config{
		Region:           cfg.Identity.Region,
		UserPoolID:       cfg.Identity.UserPoolID,
		ClientID:         cfg.Identity.ClientID,
		IdentityPoolID:   cfg.Identity.IdentityPoolID,
		Endpoint:         cfg.Identity.Endpoint,
		IdentityEndpoint: cfg.Identity.IdentityEndpoint,
	}, events, logger)

	apiClient := api.NewClient(
		cfg.API.GraphQLURL,
		authClient,
		api.WithChargeURL(cfg.API.ChargeURL),
		api.WithPageSize(cfg.API.PageSize),
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	)

	sessions := session.NewManager(authClient, apiClient, events, logger)
	if err := sessions.Start(ctx); err != nil {
		logger.Error("failed to start session manager", "error", err)
		os.Exit(1)
	}
	defer sessions.Stop()

	if cfg.Watch.Username != "" {
		logger.Info("signing in", "username", cfg.Watch.Username)
		if _, err := authClient.SignIn(ctx, cfg.Watch.Username, cfg.Watch.Password); err != nil {
			logger.Error("failed to sign in", "error", err, "username", cfg.Watch.Username)
			os.Exit(1)
		}
	}

	// Checkout ledger is optional
	var (
		pool     *pgxpool.Pool
		recorder checkout.Recorder
	)
	if cfg.Database.Ledger.Enabled() {
		logger.Info("connecting to ledger database",
			"host", cfg.Database.Ledger.Host,
			"port", cfg.Database.Ledger.Port,
			"database", cfg.Database.Ledger.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Ledger, cfg.Instance.ID, logger)
		if err != nil {
			logger.Error("failed to connect to ledger database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := ledger.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate ledger", "error", err)
			os.Exit(1)
		}

		writer := ledger.NewWriter(ledger.DefaultConfig(), pool, m, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start ledger writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			writer.Stop(shutdownCtx)
		}()
		recorder = writer
	}

	storefront := app.New(cfg, app.Deps{
		Backend:  apiClient,
		Account:  authClient,
		Sessions: sessions,
		Notifier: view.NewBusNotifier(events, logger),
		Recorder: recorder,
		Metrics:  m,
		Logger:   logger,
	})

	// Realtime feeds and one aggregator per watched market
	aggregators := make(map[string]*market.Aggregator)
	if len(cfg.Watch.MarketIDs) > 0 {
		feeds := connection.NewManager(connection.ManagerConfig{
			URL:              cfg.API.RealtimeURL,
			Host:             apiHost(cfg.API.GraphQLURL),
			SubscribeTimeout: cfg.Realtime.SubscribeTimeout,
			KeepaliveTimeout: cfg.Realtime.KeepaliveTimeout,
			BufferSize:       cfg.Realtime.BufferSize,
		}, authClient, logger)

		if err := feeds.Start(ctx); err != nil {
			logger.Error("failed to start subscription manager", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			feeds.Stop(shutdownCtx)
		}()

		for _, id := range cfg.Watch.MarketIDs {
			agg := market.NewAggregator(market.DefaultConfig(), apiClient, feeds, m, logger)
			mk, err := agg.Load(ctx, id)
			if err != nil {
				logger.Error("failed to load market", "error", err, "market_id", id)
				os.Exit(1)
			}
			logger.Info("market loaded",
				"market_id", mk.ID,
				"name", mk.Name,
				"owner", mk.Owner,
				"products", len(mk.Products),
			)
			aggregators[id] = agg
			go logChanges(logger, agg)
		}
		defer func() {
			for id, agg := range aggregators {
				if err := agg.Close(); err != nil {
					logger.Warn("error closing market", "error", err, "market_id", id)
				}
			}
		}()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(cfg.Metrics.Path, m, pool, sessions, storefront, aggregators),
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("storefront running",
		"instance_id", cfg.Instance.ID,
		"markets", len(aggregators),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("storefront stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// apiHost returns the host the realtime authorization is issued for.
func apiHost(graphqlURL string) string {
	u, err := url.Parse(graphqlURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func logNotice(logger *slog.Logger) bus.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		n, err := bus.Decode[view.Notice](msg)
		if err != nil {
			return err
		}
		logger.Info("notice",
			"kind", n.Kind,
			"title", n.Title,
			"message", n.Message,
			"duration", n.Duration,
		)
		return nil
	}
}

func logChanges(logger *slog.Logger, agg *market.Aggregator) {
	for c := range agg.Changes() {
		logger.Debug("market changed",
			"market_id", c.MarketID,
			"kind", c.Kind,
			"outcome", c.Outcome,
			"product_id", c.Product.ID,
		)
	}
}

// createHandler creates the HTTP handler for health, metrics, debugging and
// the local storefront actions.
func createHandler(metricsPath string, m *metrics.Metrics, pool *pgxpool.Pool, sessions *session.Manager,
	storefront *app.App, aggregators map[string]*market.Aggregator) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["ledger"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["ledger"] = "connected"
			}
		}

		if ident, ok := sessions.Current(); ok {
			health.Components["session"] = map[string]any{
				"username":       ident.Username,
				"email_verified": ident.EmailVerified(),
			}
		} else {
			health.Components["session"] = "signed out"
		}

		health.Components["markets"] = len(aggregators)

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/markets/{id}", func(w http.ResponseWriter, r *http.Request) {
		agg, ok := aggregators[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		mk, ok := agg.Market()
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"market":   mk,
			"products": len(mk.Products),
		})
	})

	mux.HandleFunc("GET /catalog/search", func(w http.ResponseWriter, r *http.Request) {
		markets, err := storefront.Catalog().Search(r.Context(), r.URL.Query().Get("term"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"markets": markets})
	})

	mux.HandleFunc("POST /markets/{id}/purchase", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductID string `json:"product_id"`
			Token     string `json:"token"`
			Email     string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		order, err := storefront.Purchase(r.Context(), r.PathValue("id"), req.ProductID, checkout.Token{ID: req.Token, Email: req.Email})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"order_id": order.ID, "product_id": order.Product.ID})
	})

	return mux
}

// writeError maps a storefront error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, catalog.ErrNotSignedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, catalog.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case api.KindOf(err) == api.KindValidation:
		status = http.StatusBadRequest
	}
	http.Error(w, api.UserMessage(err, err.Error()), status)
}
