// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Change-feed events applied to live market lists
//   - Checkout outcomes
//   - Discarded (superseded) catalog searches
//   - Uploaded image bytes
//   - Checkout ledger writes and drops
package metrics
