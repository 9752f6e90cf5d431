package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// undelivered is an outbox message that could not be published, with the reason it failed.
type undelivered struct {
	Message
	reason string
}

// writeDLQ records a failed delivery. The entry keeps the event's attempt count as its retry count.
// A first failure is due at once; a repeat failure waits out the backoff for its attempt.
func writeDLQ(ctx context.Context, db execer, failed undelivered, retryBase time.Duration) error {
	var delay time.Duration
	if failed.Attempts > 0 {
		delay = backoff(retryBase, failed.Attempts)
	}
	_, err := db.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, user_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, last_attempt_at, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW(), NOW() + $12::interval)`,
		failed.EventID, failed.UserID, failed.EventType, failed.Topic, failed.Payload,
		fmt.Sprintf("%s (topic=%s)", failed.reason, failed.Topic),
		failed.AggregateType, failed.AggregateID, failed.SchemaSubject, failed.PartitionKey,
		failed.Attempts, delay,
	)
	return err
}

// settle dead-letters the failures and marks the whole batch published in one transaction,
// so an event is never both pending in outbox and queued in outbox_dlq.
func (d *Dispatcher) settle(ctx context.Context, messages []Message, failed []undelivered) (err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, f := range failed {
		if err = writeDLQ(ctx, tx, f, d.retryBase); err != nil {
			return err
		}
	}

	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	if _, err = tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	for _, f := range failed {
		dlqCounter.WithLabelValues(f.Topic).Inc()
	}
	return nil
}
