package config

import "time"

// StorefrontConfig is the root configuration for a storefront instance.
type StorefrontConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Storage  StorageConfig  `yaml:"storage"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Watch    WatchConfig    `yaml:"watch"`
}

// InstanceConfig identifies this storefront process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds the managed GraphQL API and charge endpoint settings.
type APIConfig struct {
	GraphQLURL  string        `yaml:"graphql_url"`
	RealtimeURL string        `yaml:"realtime_url"`
	ChargeURL   string        `yaml:"charge_url"` // Base URL of the serverless charge endpoint
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"page_size"` // Products per market, orders per user
}

// IdentityConfig holds hosted identity provider settings.
type IdentityConfig struct {
	Region           string `yaml:"region"`
	UserPoolID       string `yaml:"user_pool_id"`
	ClientID         string `yaml:"client_id"`
	IdentityPoolID   string `yaml:"identity_pool_id"`
	Endpoint         string `yaml:"endpoint"`          // Overrides the regional user pool endpoint
	IdentityEndpoint string `yaml:"identity_endpoint"` // Overrides the regional identity pool endpoint
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Endpoint   string `yaml:"endpoint"` // Optional; overrides the regional endpoint
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	Visibility string `yaml:"visibility"` // Key prefix, e.g. "public"
}

// CheckoutConfig holds checkout orchestration settings.
type CheckoutConfig struct {
	Currency         string        `yaml:"currency"`
	RedirectDelay    time.Duration `yaml:"redirect_delay"`    // Success notice to home navigation
	ReminderDuration time.Duration `yaml:"reminder_duration"` // How long the email reminder shows
}

// RealtimeConfig holds change-feed connection settings.
type RealtimeConfig struct {
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// CatalogConfig holds catalog settings.
type CatalogConfig struct {
	Tags []string `yaml:"tags"` // Tag suggestions offered when creating a market
}

// DatabaseConfig holds the optional checkout ledger database.
type DatabaseConfig struct {
	Ledger DBConfig `yaml:"ledger"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured at all.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// WatchConfig lists markets the process keeps live, and the account used.
type WatchConfig struct {
	MarketIDs []string `yaml:"market_ids"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}
