package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events whose batch failed to publish.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wellness",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events moved to outbox_dlq, by topic.",
	}, []string{"topic"})

	kafkaWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "kafka",
		Name:      "messages_written_total",
		Help:      "Messages handed to the Kafka writer, by topic and result.",
	}, []string{"topic", "result"})

	kafkaWriteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wellness",
		Subsystem: "kafka",
		Name:      "write_duration_seconds",
		Help:      "Latency of synchronous Kafka writes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, kafkaWrites, kafkaWriteLatency)
}

func observeWrite(topic string, n int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	kafkaWrites.WithLabelValues(topic, result).Add(float64(n))
	kafkaWriteLatency.WithLabelValues(topic).Observe(elapsed.Seconds())
}
