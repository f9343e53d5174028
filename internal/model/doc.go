// Package model defines shared data types used across the storefront.
//
// Conventions:
//   - Prices: int64 minor currency units (cents); 1999 = $19.99
//   - Timestamps: time.Time in UTC, parsed from the backend's RFC 3339 strings
//   - IDs: opaque strings assigned by the backend
package model
