package database

import (
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mutation_journal (
    id UUID PRIMARY KEY,
    kind TEXT NOT NULL,
    order_ids BIGINT[] NOT NULL,
    outcome TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    operator TEXT NOT NULL DEFAULT '',
    dispatched_at TIMESTAMPTZ NOT NULL,
    settled_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mutation_journal_settled_at ON mutation_journal(settled_at DESC);
CREATE INDEX IF NOT EXISTS idx_mutation_journal_order_ids ON mutation_journal USING GIN (order_ids);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
