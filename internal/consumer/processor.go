// Package consumer reads activity events from Kafka and hands them to downstream handlers.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is a decoded record written by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them and dispatches them to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  zerolog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.With().Str("component", "consumer").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled or the reader reports cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error().Err(err).Msg("fetch failed")
			continue
		}
		p.process(ctx, record)
	}
}

// process handles one record. Undecodable records are committed so they cannot wedge the
// partition; records whose handler fails stay uncommitted and are redelivered.
func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := decode(record)
	if err != nil {
		reason := "unknown"
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			reason = decodeErr.Reason
		}
		p.logger.Warn().Err(err).
			Str("topic", record.Topic).
			Int("partition", record.Partition).
			Int64("offset", record.Offset).
			Str("reason", reason).
			Msg("dropping undecodable message")
		recordDecodeError(record.Topic, reason)
		p.commit(ctx, record, "commit after decode failure")
		return
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", msg.EventType).
			Str("user_id", msg.UserID).
			Int64("offset", msg.Offset).
			Msg("handler failed")
		recordHandlerError(msg)
		return
	}

	if p.commit(ctx, record, "commit failed") {
		recordProcessed(msg)
	}
}

func (p *Processor) commit(ctx context.Context, record kafka.Message, failure string) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Error().Err(err).Int64("offset", record.Offset).Msg(failure)
		return false
	}
	return true
}
