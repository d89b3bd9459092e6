// Package consumer reads membership events back from Kafka for auditing.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/signup/internal/events"
)

const (
	headerEventType     = "event_type"
	headerSchemaSubject = "schema_subject"

	// wireHeaderLen is the magic byte plus the big-endian schema id.
	wireHeaderLen = 5
)

// errMalformed marks records that can never be handled and are committed
// so they do not block the partition.
var errMalformed = errors.New("malformed membership record")

// Reader is the part of kafka.Reader the processor depends on.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded membership records.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a membership record with its wire framing removed.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Key           string
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for fetch, decode and handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor fetches membership records, checks their framing and subject,
// and passes them to a Handler. A record is committed once handled or once it
// is known to be malformed; a handler failure leaves it uncommitted.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *slog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  slog.Default().With("component", "consumer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		record, err := p.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			p.logger.Warn("fetch error", "error", err)
			continue
		}
		p.process(ctx, record)
	}
	return ctx.Err()
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := decodeRecord(record)
	if err != nil {
		recordDecodeError(record.Topic)
		p.logger.Warn("skipping record", "topic", record.Topic, "partition", record.Partition, "offset", record.Offset, "error", err)
		p.commit(ctx, record)
		return
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		recordHandlerError(msg)
		p.logger.Error("handler error", "event_type", msg.EventType, "key", msg.Key, "offset", msg.Offset, "error", err)
		return
	}

	if p.commit(ctx, record) {
		recordProcessed(msg)
	}
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Warn("commit error", "topic", record.Topic, "offset", record.Offset, "error", err)
		return false
	}
	return true
}

// decodeRecord strips the Schema Registry framing and requires the record
// to name the value subject of the topic it was read from.
func decodeRecord(record kafka.Message) (Message, error) {
	if len(record.Value) < wireHeaderLen {
		return Message{}, fmt.Errorf("%w: %d byte value", errMalformed, len(record.Value))
	}
	if magic := record.Value[0]; magic != 0 {
		return Message{}, fmt.Errorf("%w: magic byte %d", errMalformed, magic)
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers[headerEventType]
	if eventType == "" {
		return Message{}, fmt.Errorf("%w: no %s header", errMalformed, headerEventType)
	}
	subject, want := headers[headerSchemaSubject], events.SubjectForTopic(record.Topic)
	if subject != want {
		return Message{}, fmt.Errorf("%w: schema subject %q, want %q", errMalformed, subject, want)
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Key:           string(record.Key),
		Timestamp:     record.Time,
		EventType:     eventType,
		SchemaSubject: subject,
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:wireHeaderLen])),
		Payload:       json.RawMessage(append([]byte(nil), record.Value[wireHeaderLen:]...)),
	}, nil
}
