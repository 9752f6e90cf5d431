package consumer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/catalog"
	"example.com/wellness/internal/events"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"activity_id":"abc"}`)
	reader := &stubReader{messages: []kafka.Message{framedMessage(10, 42, payload)}}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(zerolog.New(zerolog.NewTestWriter(t))))

	before := testutil.ToFloat64(messagesCounter.WithLabelValues("activity_events", events.EventActivityLogged, resultProcessed))
	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.EventActivityLogged, handler.last.EventType)
	require.Equal(t, "student-1", handler.last.UserID)
	require.Equal(t, "activity_events-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, int64(10), handler.last.Offset)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(messagesCounter.WithLabelValues("activity_events", events.EventActivityLogged, resultProcessed)), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{framedMessage(20, 99, []byte(`{}`))}}
	handler := &stubHandler{err: errors.New("boom")}

	var logs bytes.Buffer
	processor := NewProcessor(reader, handler, WithLogger(zerolog.New(&logs)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
	require.Contains(t, logs.String(), "handler failed")
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	short := kafka.Message{Topic: "activity_events", Offset: 1, Value: []byte{0, 1}}
	noHeader := framedMessage(2, 5, []byte(`{}`))
	noHeader.Headers = nil
	badMagic := framedMessage(3, 5, []byte(`{}`))
	badMagic.Value[0] = 7
	notJSON := framedMessage(4, 5, []byte(`{"activity_id":`))

	reader := &stubReader{messages: []kafka.Message{short, noHeader, badMagic, notJSON}}
	handler := &stubHandler{}

	reasons := []string{reasonShortFrame, reasonMissingHeader, reasonMagicByte, reasonInvalidJSON}
	beforeReasons := make(map[string]float64, len(reasons))
	for _, reason := range reasons {
		beforeReasons[reason] = testutil.ToFloat64(decodeFailureCounter.WithLabelValues("activity_events", reason))
	}
	before := testutil.ToFloat64(messagesCounter.WithLabelValues("activity_events", "unknown", resultDecodeError))

	var logs bytes.Buffer
	err := NewProcessor(reader, handler, WithLogger(zerolog.New(&logs))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 4, reader.commitCalls)
	require.InDelta(t, before+4, testutil.ToFloat64(messagesCounter.WithLabelValues("activity_events", "unknown", resultDecodeError)), 0.0001)
	for _, reason := range reasons {
		require.InDelta(t, beforeReasons[reason]+1, testutil.ToFloat64(decodeFailureCounter.WithLabelValues("activity_events", reason)), 0.0001, reason)
	}
	require.Contains(t, logs.String(), `"reason":"magic_byte"`)
}

func TestDecode(t *testing.T) {
	t.Run("envelope and headers", func(t *testing.T) {
		record := framedMessage(7, 300, []byte(`{"user_id":"student-1"}`))
		record.Partition = 2
		record.Headers = append(record.Headers, kafka.Header{Key: "trace_id", Value: []byte("ignored")})

		msg, err := decode(record)
		require.NoError(t, err)
		require.Equal(t, 300, msg.SchemaID)
		require.Equal(t, 2, msg.Partition)
		require.Equal(t, int64(7), msg.Offset)
		require.Equal(t, events.EventActivityLogged, msg.EventType)
		require.Equal(t, "student-1", msg.UserID)
		require.Equal(t, "activity_events-value", msg.SchemaSubject)

		record.Value[len(record.Value)-2] = 'X'
		require.NotContains(t, string(msg.Payload), "X")
	})

	t.Run("failures carry a reason", func(t *testing.T) {
		noEventType := framedMessage(1, 1, []byte(`{}`))
		noEventType.Headers = noEventType.Headers[1:]

		cases := map[string]kafka.Message{
			reasonShortFrame:    {Value: []byte{0, 0, 0, 1}},
			reasonMagicByte:     {Value: []byte{1, 0, 0, 0, 1, '{', '}'}},
			reasonInvalidJSON:   framedMessage(1, 1, []byte("plain text")),
			reasonMissingHeader: noEventType,
		}
		for reason, record := range cases {
			_, err := decode(record)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr, reason)
			require.Equal(t, reason, decodeErr.Reason)
			require.Contains(t, err.Error(), reason)
		}
	})
}

func TestProcessorStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{framedMessage(1, 1, []byte(`{}`))}}
	err := NewProcessor(reader, &stubHandler{}, WithLogger(zerolog.Nop())).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, reader.index)
}

func TestHandlersFanOutJoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := &stubHandler{}
	third := errors.New("third")

	hs := Handlers{
		HandlerFunc(func(context.Context, Message) error { return first }),
		second,
		HandlerFunc(func(context.Context, Message) error { return third }),
	}

	err := hs.Handle(context.Background(), Message{EventType: events.EventActivityLogged})
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, third)
	require.Equal(t, 1, second.calls)

	require.NoError(t, Handlers{second}.Handle(context.Background(), Message{}))
}

func TestMetricsHandlerBucketsUnknownValues(t *testing.T) {
	h := NewMetricsHandler(catalog.NewDefault())
	ctx := context.Background()

	known := testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues("meditation", "box-breathing"))
	other := testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues("exercise", otherSlug))
	unknownType := testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues(otherSlug, "reframe"))
	seconds := testutil.ToFloat64(activitySecondsCounter.WithLabelValues("meditation"))
	payloadErrs := testutil.ToFloat64(payloadErrorCounter.WithLabelValues(events.EventActivityLogged))

	require.NoError(t, h.Handle(ctx, Message{EventType: events.EventActivityLogged, Payload: []byte(`{"type":"meditation","slug":"Box-Breathing","duration_seconds":240}`)}))
	require.NoError(t, h.Handle(ctx, Message{EventType: events.EventActivityLogged, Payload: []byte(`{"type":"exercise","slug":"parkour","duration_seconds":60}`)}))
	require.NoError(t, h.Handle(ctx, Message{EventType: events.EventActivityLogged, Payload: []byte(`{"type":"journaling","slug":"reframe"}`)}))
	require.NoError(t, h.Handle(ctx, Message{EventType: events.EventActivityLogged, Payload: []byte(`not json`)}))
	require.NoError(t, h.Handle(ctx, Message{EventType: "activity.deleted", Payload: []byte(`{"type":"meditation","slug":"box-breathing"}`)}))

	require.InDelta(t, known+1, testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues("meditation", "box-breathing")), 0.0001)
	require.InDelta(t, other+1, testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues("exercise", otherSlug)), 0.0001)
	require.InDelta(t, unknownType+1, testutil.ToFloat64(activitiesLoggedCounter.WithLabelValues(otherSlug, "reframe")), 0.0001)
	require.InDelta(t, seconds+240, testutil.ToFloat64(activitySecondsCounter.WithLabelValues("meditation")), 0.0001)
	require.InDelta(t, payloadErrs+1, testutil.ToFloat64(payloadErrorCounter.WithLabelValues(events.EventActivityLogged)), 0.0001)
}

func framedMessage(offset int64, schemaID uint32, payload []byte) kafka.Message {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)

	return kafka.Message{
		Topic:  "activity_events",
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.EventActivityLogged)},
			{Key: "user_id", Value: []byte("student-1")},
			{Key: "schema_subject", Value: []byte("activity_events-value")},
		},
	}
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
