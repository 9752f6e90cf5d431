package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/wellness/internal/catalog"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
)

// Handlers fans a message out to every handler in order. All handlers run; their errors are joined.
type Handlers []Handler

// Handle implements Handler.
func (hs Handlers) Handle(ctx context.Context, msg Message) error {
	var err error
	for _, h := range hs {
		err = errors.Join(err, h.Handle(ctx, msg))
	}
	return err
}

// PersistenceHandler appends consumed events to activity_event_log.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event. Redelivered offsets are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO activity_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.UserID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}

// MetricsHandler counts logged activities by type and catalog slug. Unrecognised values are labelled "other".
type MetricsHandler struct {
	catalog *catalog.Catalog
}

// NewMetricsHandler constructs a MetricsHandler. Slugs missing from c are counted as "other".
func NewMetricsHandler(c *catalog.Catalog) *MetricsHandler {
	return &MetricsHandler{catalog: c}
}

// Handle implements Handler. Payloads that do not parse are counted and skipped, since retrying cannot fix them.
func (h *MetricsHandler) Handle(_ context.Context, msg Message) error {
	if msg.EventType != events.EventActivityLogged {
		return nil
	}

	var evt events.ActivityLogged
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		recordPayloadError(msg.EventType)
		return nil
	}

	activityType := otherSlug
	if parsed, ok := domain.ParseActivityType(evt.Type); ok {
		activityType = string(parsed)
	}
	slug := otherSlug
	if variant, ok := h.catalog.Lookup(evt.Slug); ok {
		slug = variant.Slug
	}
	recordActivityLogged(activityType, slug, evt.DurationSeconds)
	return nil
}
