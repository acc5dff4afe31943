// Package postgres opens the registry database and owns its schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"certregistry/internal/platform/config"
	"certregistry/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Open connects, configures the pool and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates every table the registry needs. It is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// constraintFields maps unique constraints to the field they protect.
var constraintFields = map[string]string{
	"certificates_serial_number_key":  "serial_number",
	"certificates_display_number_key": "display_number",
	"consignments_number_key":         "consignment_number",
	"consignment_items_item_no_key":   "item_no",
	"label_entries_pkey":              "label_key",
}

// TranslateError turns a unique violation into sentinel.AlreadyUsed naming
// the field, and passes everything else through.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}
		return sentinel.AlreadyUsed(field)
	}
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS consignments (
	id             UUID PRIMARY KEY,
	number         TEXT NOT NULL,
	pedigree_mode  TEXT NOT NULL DEFAULT 'none'
		CHECK (pedigree_mode IN ('none', 'per_consignment', 'per_coin')),
	pedigree_value TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT consignments_number_key UNIQUE (number)
);

CREATE TABLE IF NOT EXISTS consignment_items (
	id             UUID PRIMARY KEY,
	consignment_id UUID NOT NULL REFERENCES consignments(id) ON DELETE CASCADE,
	item_no        INTEGER NOT NULL CHECK (item_no > 0),
	grade1         TEXT NOT NULL DEFAULT '',
	grade2         TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL DEFAULT '',
	year_and_name  TEXT NOT NULL DEFAULT '',
	addl1          TEXT NOT NULL DEFAULT '',
	addl2          TEXT NOT NULL DEFAULT '',
	addl3          TEXT NOT NULL DEFAULT '',
	label_type     TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT consignment_items_item_no_key UNIQUE (consignment_id, item_no)
);

CREATE TABLE IF NOT EXISTS certificates (
	id                UUID PRIMARY KEY,
	serial_number     TEXT NOT NULL,
	display_number    TEXT,
	status            TEXT NOT NULL
		CHECK (status IN ('pending', 'verified', 'reslabbed', 'revoked')),
	consignment_id    UUID REFERENCES consignments(id) ON DELETE SET NULL,
	item_id           UUID REFERENCES consignment_items(id) ON DELETE SET NULL,
	denomination      TEXT NOT NULL,
	denomination_slug TEXT NOT NULL,
	country           TEXT NOT NULL DEFAULT '',
	year              INTEGER NOT NULL,
	variety           TEXT NOT NULL DEFAULT '',
	metal             TEXT NOT NULL DEFAULT '',
	strike            TEXT NOT NULL CHECK (strike IN ('MS', 'PF', 'PL', 'PU')),
	grade_text        TEXT NOT NULL DEFAULT '',
	grade_num         INTEGER NOT NULL CHECK (grade_num BETWEEN 1 AND 70),
	label_type        TEXT NOT NULL DEFAULT '',
	pedigree          TEXT NOT NULL DEFAULT '',
	notes             TEXT NOT NULL DEFAULT '',
	superseded_by     UUID REFERENCES certificates(id),
	verified_at       TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT certificates_serial_number_key UNIQUE (serial_number),
	CONSTRAINT certificates_display_number_key UNIQUE (display_number),
	CONSTRAINT certificates_supersession_check
		CHECK ((status = 'reslabbed') = (superseded_by IS NOT NULL)),
	CONSTRAINT certificates_no_self_supersession CHECK (superseded_by <> id)
);

CREATE INDEX IF NOT EXISTS idx_certificates_bucket
	ON certificates (denomination_slug, strike, year, grade_num);
CREATE INDEX IF NOT EXISTS idx_certificates_consignment ON certificates (consignment_id);

CREATE TABLE IF NOT EXISTS cert_images (
	id      UUID PRIMARY KEY,
	cert_id UUID NOT NULL REFERENCES certificates(id) ON DELETE CASCADE,
	kind    TEXT NOT NULL CHECK (kind IN ('obv', 'rev', 'slab')),
	path    TEXT NOT NULL,
	width   INTEGER NOT NULL DEFAULT 0,
	height  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cert_events (
	seq        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	cert_id    UUID NOT NULL REFERENCES certificates(id) ON DELETE CASCADE,
	type       TEXT NOT NULL
		CHECK (type IN ('created', 'slabbed', 'revised', 'revoked', 'renumbered', 'regraded')),
	actor      TEXT NOT NULL DEFAULT '',
	meta       JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cert_events_cert ON cert_events (cert_id, seq);

CREATE TABLE IF NOT EXISTS population_buckets (
	denomination_slug TEXT NOT NULL,
	strike            TEXT NOT NULL,
	year              INTEGER NOT NULL,
	grade_num         INTEGER NOT NULL,
	count             INTEGER NOT NULL CHECK (count >= 0),
	PRIMARY KEY (denomination_slug, strike, year, grade_num)
);

CREATE TABLE IF NOT EXISTS label_entries (
	key           TEXT NOT NULL,
	country       TEXT NOT NULL DEFAULT '',
	year          TEXT NOT NULL DEFAULT '',
	coin_name     TEXT NOT NULL DEFAULT '',
	grade_label   TEXT NOT NULL DEFAULT '',
	serial_format TEXT NOT NULL DEFAULT '',
	addl1         TEXT NOT NULL DEFAULT '',
	addl2         TEXT NOT NULL DEFAULT '',
	addl3         TEXT NOT NULL DEFAULT '',
	aliases       TEXT[] NOT NULL DEFAULT '{}',
	updated_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT label_entries_pkey PRIMARY KEY (key)
);

CREATE TABLE IF NOT EXISTS outbox (
	seq            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id             UUID NOT NULL UNIQUE,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ,
	claimed_until  TIMESTAMPTZ
);

ALTER TABLE outbox ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (seq) WHERE published_at IS NULL;
`
