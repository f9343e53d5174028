package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout        = 30 * time.Second
	DefaultPageSize          = 999
	DefaultVisibility        = "public"
	DefaultCurrency          = "USD"
	DefaultRedirectDelay     = 3 * time.Second
	DefaultReminderDuration  = 5 * time.Second
	DefaultSubscribeTimeout  = 10 * time.Second
	DefaultKeepaliveTimeout  = 5 * time.Minute
	DefaultRealtimeBuffer    = 256
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultInstanceID        = "storefront"
	DefaultStorageRegionHint = "us-east-1"
)

// DefaultTags are the tag suggestions offered when creating a market.
var DefaultTags = []string{"Arts", "Technology", "Crafts", "Entertainment"}

func (c *StorefrontConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = DefaultPageSize
	}

	// Identity and storage share a region unless told otherwise
	if c.Identity.Region == "" {
		c.Identity.Region = DefaultStorageRegionHint
	}
	if c.Storage.Region == "" {
		c.Storage.Region = c.Identity.Region
	}
	if c.Storage.Visibility == "" {
		c.Storage.Visibility = DefaultVisibility
	}

	// Checkout defaults
	if c.Checkout.Currency == "" {
		c.Checkout.Currency = DefaultCurrency
	}
	if c.Checkout.RedirectDelay == 0 {
		c.Checkout.RedirectDelay = DefaultRedirectDelay
	}
	if c.Checkout.ReminderDuration == 0 {
		c.Checkout.ReminderDuration = DefaultReminderDuration
	}

	// Realtime defaults
	if c.Realtime.SubscribeTimeout == 0 {
		c.Realtime.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Realtime.KeepaliveTimeout == 0 {
		c.Realtime.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultRealtimeBuffer
	}

	if len(c.Catalog.Tags) == 0 {
		c.Catalog.Tags = append([]string(nil), DefaultTags...)
	}

	// Database defaults only matter when a ledger is configured
	if c.Database.Ledger.Enabled() {
		applyDBDefaults(&c.Database.Ledger)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
