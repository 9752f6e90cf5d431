package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one DLQ manager decision.
const (
	outcomeRequeued    = "requeued"
	outcomeRetry       = "retry_scheduled"
	outcomeQuarantined = "quarantined"
)

var (
	dlqDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "dlq",
		Name:      "decisions_total",
		Help:      "DLQ entries processed by the manager, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wellness",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows in outbox_dlq, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqDecisions, dlqBacklogGauge)
}

func recordDLQDecision(entry dlqEntry, outcome string) {
	dlqDecisions.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) error {
	var pending, quarantined int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
           FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		return err
	}
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
	return nil
}
