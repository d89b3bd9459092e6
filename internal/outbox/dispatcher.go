// Package outbox buffers membership events in memory and delivers them to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/signup/internal/events"
)

// ErrQueueFull is returned by Publish when the buffer cannot take another event.
var ErrQueueFull = errors.New("outbox queue is full")

const drainTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// SchemaRegistrar resolves the schema id for a subject, registering it if needed.
type SchemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Config tunes the Dispatcher.
type Config struct {
	Topic         string
	FlushInterval time.Duration
	BatchSize     int
	QueueSize     int
}

// Dispatcher queues membership events and flushes them to Kafka in batches,
// framed with the Schema Registry wire format.
type Dispatcher struct {
	producer         messageWriter
	registry         SchemaRegistrar
	logger           *slog.Logger
	topic            string
	subject          string
	flushInterval    time.Duration
	batchSize        int
	queue            chan events.MembershipChanged
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher. registry may be nil, in which case
// records carry schema id 0.
func NewDispatcher(producer messageWriter, registry SchemaRegistrar, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		producer:         producer,
		registry:         registry,
		logger:           logger.With("component", "outbox"),
		topic:            cfg.Topic,
		subject:          events.SubjectForTopic(cfg.Topic),
		flushInterval:    cfg.FlushInterval,
		batchSize:        cfg.BatchSize,
		queue:            make(chan events.MembershipChanged, cfg.QueueSize),
		shutdownComplete: make(chan struct{}),
	}
}

// Publish enqueues an event without blocking.
func (d *Dispatcher) Publish(ctx context.Context, event events.MembershipChanged) error {
	select {
	case d.queue <- event:
		queueDepth.Inc()
		return nil
	default:
		droppedCounter.Inc()
		return ErrQueueFull
	}
}

// Start runs the flush loop until ctx is cancelled, then drains whatever is
// still queued. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	batch := make([]events.MembershipChanged, 0, d.batchSize)
	for {
		select {
		case <-ctx.Done():
			d.drain(batch)
			return
		case event := <-d.queue:
			queueDepth.Dec()
			batch = append(batch, event)
			if len(batch) < d.batchSize {
				continue
			}
		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
		}
		if !d.flushRunning(ctx, batch) {
			d.drain(batch)
			return
		}
		batch = batch[:0]
	}
}

// flushRunning flushes batch with the run context. It reports false when the
// write was cut short by shutdown, leaving batch for drain.
func (d *Dispatcher) flushRunning(ctx context.Context, batch []events.MembershipChanged) bool {
	err := d.flush(ctx, batch)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		d.logger.Debug("flush interrupted by shutdown", "events", len(batch))
		return false
	}
	d.recordFailure(batch, err)
	return true
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) drain(batch []events.MembershipChanged) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case event := <-d.queue:
			queueDepth.Dec()
			batch = append(batch, event)
			if len(batch) < d.batchSize {
				continue
			}
		default:
			if len(batch) > 0 {
				if err := d.flush(ctx, batch); err != nil {
					d.recordFailure(batch, err)
				}
			}
			return
		}
		if err := d.flush(ctx, batch); err != nil {
			d.recordFailure(batch, err)
		}
		batch = batch[:0]
	}
}

func (d *Dispatcher) flush(ctx context.Context, batch []events.MembershipChanged) error {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, batch); err != nil {
		return err
	}
	deliveredCounter.Add(float64(len(batch)))
	return nil
}

func (d *Dispatcher) recordFailure(batch []events.MembershipChanged, err error) {
	failedCounter.Add(float64(len(batch)))
	d.logger.Error("delivery failure", "events", len(batch), "topic", d.topic, "error", err)
}

func (d *Dispatcher) deliver(ctx context.Context, batch []events.MembershipChanged) error {
	schemaID, err := d.schemaID(ctx)
	if err != nil {
		return err
	}

	records := make([]kafka.Message, 0, len(batch))
	for _, event := range batch {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event.EventID, err)
		}
		records = append(records, kafka.Message{
			Key:   []byte(event.Activity),
			Value: encodeWireFormat(schemaID, payload),
			Time:  event.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "schema_subject", Value: []byte(d.subject)},
			},
		})
	}
	return d.producer.WriteMessages(ctx, d.topic, records...)
}

func (d *Dispatcher) schemaID(ctx context.Context) (int, error) {
	if d.registry == nil {
		return 0, nil
	}
	if cached, ok := d.schemaIDCache.Load(d.subject); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, d.subject, membershipChangedSchema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(d.subject, id)
	return id, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
