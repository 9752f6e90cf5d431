package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/observability"
)

const selectActivity = `SELECT activity_id::text, user_id, activity_type, name, slug, duration_seconds, completed_at, created_at
        FROM activities`

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create persists the record and its activity.logged outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, record domain.ActivityRecord) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (activity_id, user_id, activity_type, name, slug, duration_seconds, completed_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, insertActivity,
		record.ID,
		record.UserID,
		string(record.Type),
		record.Name,
		record.Slug,
		record.DurationSeconds,
		record.CompletedAt,
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, record, events.EventActivityLogged, events.ActivityLogged{
		ActivityID:      record.ID,
		UserID:          record.UserID,
		Type:            string(record.Type),
		Name:            record.Name,
		Slug:            record.Slug,
		DurationSeconds: record.DurationSeconds,
		CompletedAt:     record.CompletedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(record.CreatedAt)
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record domain.ActivityRecord, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, user_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		record.ID,
		record.UserID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		fmt.Sprintf("%s:%s", record.ID, eventType),
	)
	return err
}

// Get retrieves an activity by ID, returning nil when it does not exist.
// An ID that is not a UUID cannot exist and is reported the same way.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	id, err := uuid.Parse(activityID)
	if err != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, selectActivity+` WHERE activity_id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns one page of a user's activities, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := selectActivity + ` WHERE user_id = $1`

	if cursor != nil {
		afterID, err := uuid.Parse(cursor.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("cursor activity id: %w", err)
		}
		query += ` AND (completed_at, activity_id) < ($3, $4)`
		args = append(args, cursor.CompletedAt, afterID)
	}
	query += ` ORDER BY completed_at DESC, activity_id DESC LIMIT $2`

	results, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CompletedAt: last.CompletedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListAllByUser returns the user's full activity history.
func (r *Repository) ListAllByUser(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	return r.query(ctx, selectActivity+` WHERE user_id = $1 ORDER BY completed_at DESC`, userID)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.ActivityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanRecord(row pgx.Row) (domain.ActivityRecord, error) {
	var (
		rec          domain.ActivityRecord
		activityType string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &activityType, &rec.Name, &rec.Slug, &rec.DurationSeconds, &rec.CompletedAt, &rec.CreatedAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.Type = domain.ActivityType(activityType)
	rec.CompletedAt = rec.CompletedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ActivityRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.EventActivityLogged: {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKeyFn: func(r domain.ActivityRecord) string {
			return r.UserID
		},
	},
}
