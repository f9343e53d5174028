package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkout_attempts (
	attempt_id   UUID PRIMARY KEY,
	product_id   TEXT NOT NULL,
	buyer_id     TEXT NOT NULL,
	amount       BIGINT NOT NULL,
	currency     CHAR(3) NOT NULL,
	state        TEXT NOT NULL,
	charge_id    TEXT,
	order_id     TEXT,
	error        TEXT,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS checkout_attempts_buyer_idx ON checkout_attempts (buyer_id, finished_at DESC);
`

// Execer runs a statement.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate creates the ledger table if it does not exist.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}
