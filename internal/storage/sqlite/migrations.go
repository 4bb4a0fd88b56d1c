package sqlite

import "database/sql"

// schema sets up the database tables. It runs on startup to ensure tables exist.
// Members are stored as a JSON document on the split row so that a member
// update is a single conditional row write.
const schema = `
CREATE TABLE IF NOT EXISTS splits (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    currency TEXT NOT NULL,
    total TEXT NOT NULL,
    members TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_orders (
    order_ref TEXT PRIMARY KEY,
    split_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    processor_order_id TEXT,
    payment_session_id TEXT,
    status TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_orders_split_id ON payment_orders(split_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
