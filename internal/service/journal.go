package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"orderdesk/internal/cache"
	"orderdesk/internal/model"
)

const (
	journalWriteTimeout = 5 * time.Second
	DefaultJournalLimit = 100
	MaxJournalLimit     = 1000
)

// JournalService persists settled mutations for the audit trail.
type JournalService struct {
	db *sql.DB
}

var _ cache.Journal = (*JournalService)(nil)

func NewJournalService(db *sql.DB) *JournalService {
	return &JournalService{db: db}
}

// Record stores rec. Storage failures are logged and never reach the cache.
func (s *JournalService) Record(ctx context.Context, rec cache.Record) {
	ctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	if err := s.insert(ctx, rec); err != nil {
		slog.Error("failed to journal mutation", "id", rec.ID, "kind", rec.Kind, "error", err)
	}
}

func (s *JournalService) insert(ctx context.Context, rec cache.Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mutation_journal (id, kind, order_ids, outcome, error, operator, dispatched_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, id, string(rec.Kind), rec.OrderIDs, string(rec.Outcome), rec.Error, rec.Actor, rec.DispatchedAt, rec.SettledAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// List returns the most recently settled entries first. limit is clamped to
// [1, MaxJournalLimit].
func (s *JournalService) List(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, order_ids, outcome, error, operator, dispatched_at, settled_at
		FROM mutation_journal
		ORDER BY settled_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	// pgtype.Map caches scan plans and is not safe to share between queries.
	types := pgtype.NewMap()
	entries := make([]model.JournalEntry, 0, limit)
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, types.SQLScanner(&e.OrderIDs), &e.Outcome, &e.Error,
			&e.Operator, &e.DispatchedAt, &e.SettledAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return entries, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultJournalLimit
	case limit > MaxJournalLimit:
		return MaxJournalLimit
	default:
		return limit
	}
}
