package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const otherSlug = "other"

// Results recorded per consumed record.
const (
	resultProcessed    = "processed"
	resultHandlerError = "handler_error"
	resultDecodeError  = "decode_error"
)

var (
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka records seen by the consumer, by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	decodeFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "consumer",
		Name:      "decode_failures_total",
		Help:      "Records dropped before reaching a handler, by topic and reason.",
	}, []string{"topic", "reason"})

	payloadErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "consumer",
		Name:      "payload_errors_total",
		Help:      "Number of event payloads that could not be parsed.",
	}, []string{"event_type"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wellness",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})

	activitiesLoggedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "activities",
		Name:      "logged_total",
		Help:      "Activities logged, by type and catalog slug.",
	}, []string{"type", "slug"})

	activitySecondsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "activities",
		Name:      "duration_seconds_total",
		Help:      "Total logged activity duration by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(messagesCounter, decodeFailureCounter, payloadErrorCounter, lastMessageGauge, activitiesLoggedCounter, activitySecondsCounter)
}

func recordProcessed(msg Message) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, resultProcessed).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, resultHandlerError).Inc()
}

// recordDecodeError counts a record whose framing or headers were unusable. The event type is
// unknown at that point.
func recordDecodeError(topic, reason string) {
	messagesCounter.WithLabelValues(topic, "unknown", resultDecodeError).Inc()
	decodeFailureCounter.WithLabelValues(topic, reason).Inc()
}

func recordPayloadError(eventType string) {
	payloadErrorCounter.WithLabelValues(eventType).Inc()
}

func recordActivityLogged(activityType, slug string, durationSeconds int) {
	activitiesLoggedCounter.WithLabelValues(activityType, slug).Inc()
	if durationSeconds > 0 {
		activitySecondsCounter.WithLabelValues(activityType).Add(float64(durationSeconds))
	}
}
