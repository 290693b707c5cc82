package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"evently/internal/storage"
	"evently/internal/types"
)

type eventStore struct {
	db *sql.DB
	d  Dialect
}

const eventColumns = `id, title, description, start_at, end_at, venue, address, city,
	price_tier, price_amount, image_url, source_url, source_kind, category, fingerprint,
	status, publish_id, created_at, updated_at`

func (s *eventStore) Begin(ctx context.Context) (storage.EventBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	return &eventBatch{tx: tx, d: s.d}, nil
}

func (s *eventStore) Get(ctx context.Context, id int64) (types.Event, error) {
	query := s.d.rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ?`)

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Event{}, fmt.Errorf("event %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Event{}, fmt.Errorf("failed to load event %d: %w", id, err)
	}
	return event, nil
}

func (s *eventStore) ListByStatus(ctx context.Context, status types.EventStatus, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.d.rebind(`SELECT ` + eventColumns + ` FROM events WHERE status = ? ORDER BY start_at ASC, id ASC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]types.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (s *eventStore) MarkPublished(ctx context.Context, id int64, publishID string) error {
	query := s.d.rebind(`
		UPDATE events
		SET status = 'PUBLISHED', publish_id = ?, updated_at = ?
		WHERE id = ? AND status = 'DRAFT'
	`)

	result, err := s.db.ExecContext(ctx, query, publishID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event %d published: %w", id, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("event %d is not a draft: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *eventStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes events that started before now-age.
func (s *eventStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	query := s.d.rebind(`DELETE FROM events WHERE start_at < ?`)

	slog.Debug("Deleting events older than cutoff", "age", age, "cutoff", cutoff.Format(time.RFC3339))
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil {
		slog.Debug("Deleted old events", "count", rows)
	}
	return rows, err
}

type eventBatch struct {
	tx  *sql.Tx
	d   Dialect
	seq int
}

func (b *eventBatch) ExistsFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := b.tx.QueryRowContext(ctx, b.d.rebind(`SELECT 1 FROM events WHERE fingerprint = ? LIMIT 1`), fingerprint).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return true, nil
}

// Insert runs inside its own savepoint so a failed row leaves the rest of
// the batch usable.
func (b *eventBatch) Insert(ctx context.Context, event *types.Event) (bool, error) {
	b.seq++
	savepoint := fmt.Sprintf("event_%d", b.seq)

	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return false, fmt.Errorf("failed to open savepoint: %w", err)
	}

	now := time.Now().UTC()
	if event.Status == "" {
		event.Status = types.EventDraft
	}

	query := b.d.rebind(`
		INSERT INTO events (title, description, start_at, end_at, venue, address, city,
			price_tier, price_amount, image_url, source_url, source_kind, category, fingerprint,
			status, publish_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id
	`)

	var endAt sql.NullTime
	if event.EndAt != nil {
		endAt = sql.NullTime{Time: event.EndAt.UTC(), Valid: true}
	}
	var amount sql.NullFloat64
	if event.PriceAmount != nil {
		amount = sql.NullFloat64{Float64: *event.PriceAmount, Valid: true}
	}

	var id int64
	err := b.tx.QueryRowContext(ctx, query,
		event.Title,
		event.Description,
		event.StartAt.UTC(),
		endAt,
		event.Venue,
		event.Address,
		event.City,
		string(event.PriceTier),
		amount,
		event.ImageURL,
		event.SourceURL,
		string(event.SourceKind),
		event.Category,
		event.Fingerprint,
		string(event.Status),
		now,
		now,
	).Scan(&id)

	switch {
	case err == nil:
		event.ID = id
		event.CreatedAt = now
		event.UpdatedAt = now
		return true, b.release(ctx, savepoint)
	case errors.Is(err, sql.ErrNoRows):
		return false, b.release(ctx, savepoint)
	case b.d.IsUniqueViolation(err):
		return false, b.rollbackTo(ctx, savepoint)
	default:
		if rbErr := b.rollbackTo(ctx, savepoint); rbErr != nil {
			return false, fmt.Errorf("failed to insert event: %w (savepoint: %v)", err, rbErr)
		}
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
}

func (b *eventBatch) release(ctx context.Context, savepoint string) error {
	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (b *eventBatch) rollbackTo(ctx context.Context, savepoint string) error {
	if _, err := b.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("failed to roll back savepoint: %w", err)
	}
	return b.release(ctx, savepoint)
}

func (b *eventBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (b *eventBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back batch: %w", err)
	}
	return nil
}

func scanEvent(row rowScanner) (types.Event, error) {
	var (
		event     types.Event
		endAt     sql.NullTime
		amount    sql.NullFloat64
		tier      string
		kind      string
		status    string
		publishID string
	)

	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.StartAt,
		&endAt,
		&event.Venue,
		&event.Address,
		&event.City,
		&tier,
		&amount,
		&event.ImageURL,
		&event.SourceURL,
		&kind,
		&event.Category,
		&event.Fingerprint,
		&status,
		&publishID,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return types.Event{}, err
	}

	if endAt.Valid {
		t := endAt.Time
		event.EndAt = &t
	}
	if amount.Valid {
		v := amount.Float64
		event.PriceAmount = &v
	}
	event.PriceTier = types.PriceTier(tier)
	event.SourceKind = types.SourceKind(kind)
	event.Status = types.EventStatus(status)
	event.PublishID = publishID
	return event, nil
}
