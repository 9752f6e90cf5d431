package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxBackoff        = time.Hour
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Minute
)

// DLQManager replays dead-lettered outbox events and quarantines the ones that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to 5 retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &DLQManager{
		pool:       pool,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     log.With().Str("component", "dlq-manager").Logger(),
	}
}

// RunOnce processes one batch of due DLQ entries and returns how many were requeued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}

	// Collect first so the connection is released before per-entry transactions start.
	var entries []dlqEntry
	for rows.Next() {
		entry, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			err = errors.Join(err, scanErr)
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		err = errors.Join(err, rowsErr)
	}

	requeued := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if ok {
			requeued++
		}
	}

	if gaugeErr := updateBacklogGauge(ctx, m.pool); gaugeErr != nil {
		m.logger.Warn().Err(gaugeErr).Msg("dlq backlog gauge not updated")
	}
	return requeued, err
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := m.RunOnce(ctx, batchSize)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Msg("dlq pass failed")
		} else if n > 0 {
			m.logger.Info().Int("requeued", n).Msg("dlq entries requeued")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleEntry applies the retry or quarantine decision for a single entry. It reports whether the entry was requeued.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (requeued bool, err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if entry.RetryCount >= m.maxRetries {
		if _, err = tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return false, err
		}
		recordDLQDecision(entry, outcomeQuarantined)
		m.logger.Warn().Int64("dlq_id", entry.ID).Str("event_type", entry.EventType).Int("retries", entry.RetryCount).Msg("dlq entry quarantined")
		return false, nil
	}

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		// The failed insert aborted tx; schedule the retry on a fresh statement.
		_ = tx.Rollback(ctx)
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err = m.pool.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			delay, insertErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		recordDLQDecision(entry, outcomeRetry)
		return false, nil
	}

	if _, err = tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	recordDLQDecision(entry, outcomeRequeued)
	return true, nil
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	return backoff(m.baseDelay, attempt)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * base
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// requeueOutbox reinserts the payload into the primary outbox table for replay.
// The new row carries the attempt number so a repeat failure lands back in the DLQ further along its backoff.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := tx.Exec(ctx, stmt,
		entry.UserID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
		entry.RetryCount+1,
	)
	return err
}

type dlqEntry struct {
	ID            int64
	UserID        string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(rows pgx.Rows) (dlqEntry, error) {
	var entry dlqEntry
	if err := rows.Scan(&entry.ID, &entry.UserID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason, &entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount); err != nil {
		return dlqEntry{}, err
	}
	return entry, nil
}
