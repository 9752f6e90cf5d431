package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig tunes the Kafka writers the producer opens.
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	BatchTimeout time.Duration
}

// KafkaProducer keeps one synchronous writer per topic, keyed by partition key hash.
type KafkaProducer struct {
	cfg    ProducerConfig
	logger zerolog.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. Writers are opened on first use.
func NewKafkaProducer(cfg ProducerConfig) *KafkaProducer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &KafkaProducer{
		cfg:     cfg,
		logger:  log.With().Str("component", "kafka-producer").Logger(),
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes msgs to topic and waits for every in-sync replica to acknowledge them.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	start := time.Now()
	err := p.writer(topic).WriteMessages(ctx, msgs...)
	observeWrite(topic, len(msgs), time.Since(start), err)
	return err
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: p.cfg.BatchTimeout,
		ErrorLogger: kafka.LoggerFunc(func(format string, args ...interface{}) {
			p.logger.Error().Str("topic", topic).Msgf(format, args...)
		}),
	}
	if p.cfg.ClientID != "" {
		w.Transport = &kafka.Transport{ClientID: p.cfg.ClientID}
	}
	p.writers[topic] = w
	return w
}

// Close flushes and closes every writer opened so far.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
