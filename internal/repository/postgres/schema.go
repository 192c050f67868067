package postgres

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	`CREATE TABLE IF NOT EXISTS resource_units (
		id                TEXT PRIMARY KEY,
		kind              TEXT NOT NULL CHECK (kind IN ('book_copy', 'seat', 'parking_spot')),
		label             TEXT NOT NULL DEFAULT '',
		attributes        JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_on        TIMESTAMPTZ NOT NULL,
		decommissioned_on TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS resource_units_kind_idx ON resource_units (kind) WHERE decommissioned_on IS NULL`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id        TEXT PRIMARY KEY,
		unit_id   TEXT NOT NULL REFERENCES resource_units (id),
		holder_id TEXT NOT NULL,
		kind      TEXT NOT NULL CHECK (kind IN ('checkout', 'seat_reservation', 'parking_reservation')),
		opened_at TIMESTAMPTZ NOT NULL,
		due_at    TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		renewals  INTEGER NOT NULL DEFAULT 0,
		note      TEXT NOT NULL DEFAULT '',
		CHECK (due_at > opened_at),
		CONSTRAINT ledger_entries_no_overlap EXCLUDE USING gist (
			unit_id WITH =,
			tstzrange(opened_at, due_at, '[)') WITH &&
		) WHERE (closed_at IS NULL AND kind <> 'checkout')
	)`,
	// At most one open checkout per unit.
	`CREATE UNIQUE INDEX IF NOT EXISTS ledger_entries_one_open_checkout
		ON ledger_entries (unit_id) WHERE closed_at IS NULL AND kind = 'checkout'`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_unit_idx ON ledger_entries (unit_id, opened_at)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_holder_idx ON ledger_entries (holder_id, opened_at)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_open_due_idx ON ledger_entries (due_at) WHERE closed_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS members (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'member',
		status        TEXT NOT NULL DEFAULT 'active',
		created_on    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS members_email_idx ON members (LOWER(email))`,
}
