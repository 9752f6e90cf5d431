//go:build integration

package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/wellness/internal/events"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := "student-" + uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, userID, events.EventActivityLogged)

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 42}, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "activity_events", producer.writes[0].topic)
	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.NotNil(t, publishedAt)
}

func TestDispatcherFailureRoundTripsThroughDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := "student-" + uuid.NewString()
	seedOutbox(t, ctx, pool, userID, events.EventActivityLogged)

	registry := &stubRegistry{id: 7}
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, registry, 10*time.Millisecond, 5)

	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("activity_events"))
	require.NoError(t, failing.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("activity_events")), 0.0001)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE user_id = $1`, userID).Scan(&reason))
	require.Contains(t, reason, "kafka write failed")

	manager := NewDLQManager(pool, 3, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&remaining))
	require.Zero(t, remaining)

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, producer.writes, 1)
	require.Equal(t, []byte(userID), producer.writes[0].messages[0].Key)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, user_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES (1, 'student-1', $1, 'activity_events', '{}'::jsonb, 'kafka down', 'activity', 'a-1', 'activity_events-value', 'student-1', 3, NOW())`,
		events.EventActivityLogged)
	require.NoError(t, err)

	requeued, err := NewDLQManager(pool, 3, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)

	var quarantineReason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantineReason))
	require.Equal(t, "retry limit reached", quarantineReason)
	require.Zero(t, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues("pending")))
	require.Equal(t, 1.0, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues("quarantined")))
	require.Positive(t, testutil.ToFloat64(dlqDecisions.WithLabelValues("activity_events", events.EventActivityLogged, outcomeQuarantined)))
}

func TestRepeatedDeliveryFailuresEndInQuarantine(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	const maxRetries = 3
	userID := "student-" + uuid.NewString()
	seedOutbox(t, ctx, pool, userID, events.EventActivityLogged)

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, &stubRegistry{id: 7}, 10*time.Millisecond, 5,
		WithRetryBackoff(time.Millisecond))
	manager := NewDLQManager(pool, maxRetries, time.Millisecond)

	for attempt := 0; attempt < maxRetries; attempt++ {
		require.NoError(t, failing.processBatch(ctx))

		var retryCount int
		require.NoError(t, pool.QueryRow(ctx, `SELECT retry_count FROM outbox_dlq WHERE user_id = $1`, userID).Scan(&retryCount))
		require.Equal(t, attempt, retryCount)

		time.Sleep(20 * time.Millisecond)
		requeued, err := manager.RunOnce(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, 1, requeued)
	}

	require.NoError(t, failing.processBatch(ctx))
	time.Sleep(20 * time.Millisecond)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)

	var retryCount int
	var reason string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT retry_count, quarantine_reason FROM outbox_dlq WHERE user_id = $1 AND quarantined_at IS NOT NULL`, userID,
	).Scan(&retryCount, &reason))
	require.Equal(t, maxRetries, retryCount)
	require.Equal(t, "retry limit reached", reason)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)
}

func TestRepeatFailureWaitsOutBackoff(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := "student-" + uuid.NewString()
	seedOutbox(t, ctx, pool, userID, events.EventActivityLogged)

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, &stubRegistry{id: 7}, 10*time.Millisecond, 5,
		WithRetryBackoff(time.Hour))
	manager := NewDLQManager(pool, 3, time.Hour)

	require.NoError(t, failing.processBatch(ctx))
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var attempts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT attempts FROM outbox WHERE user_id = $1 AND published_at IS NULL`, userID).Scan(&attempts))
	require.Equal(t, 1, attempts)

	require.NoError(t, failing.processBatch(ctx))

	var retryCount int
	var waitSeconds int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT retry_count, EXTRACT(EPOCH FROM next_retry_at - NOW())::bigint FROM outbox_dlq WHERE user_id = $1`, userID,
	).Scan(&retryCount, &waitSeconds))
	require.Equal(t, 1, retryCount)
	require.InDelta(t, time.Hour.Seconds(), float64(waitSeconds), 60)

	requeued, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migration := filepath.Join(filepath.Dir(file), "..", "..", "db", "postgres", "migrations", "0001_init.up.sql")

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("wellness"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
		postgrescontainer.WithInitScripts(migration),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, pg)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, eventType string) int64 {
	t.Helper()

	var eventID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,'activity',$2,$3,'activity_events','activity_events-value',$1,$4)
         RETURNING event_id`,
		userID, uuid.NewString(), eventType, []byte(`{"user_id":"`+userID+`"}`),
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}
