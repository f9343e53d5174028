// Package ledger records finished checkout attempts in PostgreSQL.
//
// Record never blocks the checkout: attempts are buffered and written in
// batches by a background writer. When the buffer is full, attempts are
// dropped and counted. Inserts are idempotent on the attempt id.
package ledger
