// Package database opens the optional PostgreSQL pool that backs the
// checkout ledger.
package database
