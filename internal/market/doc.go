// Package market keeps one market's product list live.
//
// An Aggregator loads the market with its newest products and then applies
// the created, updated and deleted product feeds to the list. All three
// feeds are merged into a single writer goroutine, so events are applied
// one at a time in arrival order.
//
// Reconciliation rules:
//   - create: drop any entry with the same id, then prepend
//   - update: replace in place, or prepend when the id is unknown
//   - delete: drop the entry; unknown ids are ignored
//
// These rules are idempotent under replay and never leave two entries with
// the same id.
package market
