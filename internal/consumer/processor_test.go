package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/signup/internal/events"
)

func framed(schemaID uint32, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"event_id":"abc","activity":"Chess Club"}`)
	msg := kafka.Message{
		Topic:     "activity_membership",
		Partition: 0,
		Offset:    10,
		Key:       []byte("Chess Club"),
		Time:      time.Now().UTC(),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeSignedUp)},
			{Key: "schema_subject", Value: []byte("activity_membership-value")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}
	processed := testutil.ToFloat64(processedCounter.WithLabelValues("activity_membership", events.TypeSignedUp))

	processor := NewProcessor(reader, handler, WithLogger(testLogger()))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, processed+1, testutil.ToFloat64(processedCounter.WithLabelValues("activity_membership", events.TypeSignedUp)))
	require.Equal(t, events.TypeSignedUp, handler.last.EventType)
	require.Equal(t, "Chess Club", handler.last.Key)
	require.Equal(t, "activity_membership-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  "activity_membership",
		Offset: 20,
		Time:   time.Now().UTC(),
		Value:  framed(99, []byte(`{"event_id":"def"}`)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeUnregistered)},
			{Key: "schema_subject", Value: []byte("activity_membership-value")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(testLogger()))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "activity_membership", Value: []byte{0, 1}},
			{Topic: "activity_membership", Value: framed(1, []byte(`{}`))},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger())).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls, "short payload and missing event_type header are both rejected")
	require.Equal(t, 2, reader.commitCalls)
}

func TestProcessorCommitsRecordsWithForeignSubject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	header := func(subject string) []kafka.Header {
		headers := []kafka.Header{{Key: "event_type", Value: []byte(events.TypeSignedUp)}}
		if subject != "" {
			headers = append(headers, kafka.Header{Key: "schema_subject", Value: []byte(subject)})
		}
		return headers
	}
	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "activity_membership", Value: framed(1, []byte(`{}`)), Headers: header("orders-value")},
			{Topic: "activity_membership", Value: framed(1, []byte(`{}`)), Headers: header("")},
			{Topic: "activity_membership", Value: framed(1, []byte(`{}`)), Headers: header("activity_membership-value")},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}
	decodeErrors := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("activity_membership"))

	err := NewProcessor(reader, handler, WithLogger(testLogger())).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.Equal(t, decodeErrors+2, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("activity_membership")))
}

func TestDecodeRecordRejectsUnknownMagicByte(t *testing.T) {
	value := framed(1, []byte(`{}`))
	value[0] = 1
	_, err := decodeRecord(kafka.Message{Topic: "t", Value: value})
	require.ErrorIs(t, err, errMalformed)
	require.ErrorContains(t, err, "magic byte 1")
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
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

func contextCanceled() error { return context.Canceled }

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
