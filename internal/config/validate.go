package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *StorefrontConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := validateURL("api.graphql_url", c.API.GraphQLURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("api.realtime_url", c.API.RealtimeURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("api.charge_url", c.API.ChargeURL, "http", "https"); err != nil {
		return err
	}
	if c.API.PageSize < 1 {
		return errors.New("api.page_size must be >= 1")
	}

	if c.Identity.UserPoolID == "" {
		return errors.New("identity.user_pool_id is required")
	}
	if c.Identity.ClientID == "" {
		return errors.New("identity.client_id is required")
	}
	if c.Identity.IdentityPoolID == "" {
		return errors.New("identity.identity_pool_id is required")
	}

	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Storage.Endpoint != "" {
		if err := validateURL("storage.endpoint", c.Storage.Endpoint, "http", "https"); err != nil {
			return err
		}
	}

	if len(c.Checkout.Currency) != 3 {
		return fmt.Errorf("checkout.currency must be a 3-letter code, got %q", c.Checkout.Currency)
	}

	if c.Realtime.BufferSize < 1 {
		return errors.New("realtime.buffer_size must be >= 1")
	}

	if c.Database.Ledger.Enabled() {
		if err := c.Database.Ledger.validate("database.ledger"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if len(c.Watch.MarketIDs) > 0 && c.Watch.Username == "" {
		return errors.New("watch.username is required when watch.market_ids is set")
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL, got %q", field, schemes, raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
