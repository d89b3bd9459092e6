//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/signup/internal/catalog"
	"example.com/signup/internal/domain"
	"example.com/signup/internal/outbox"
)

func TestMembershipEventsRoundTripThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	topic := "activity_membership"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
	require.NoError(t, conn.Close())

	producer := outbox.NewKafkaProducer(brokers)
	t.Cleanup(func() { _ = producer.Close() })

	dispatcher := outbox.NewDispatcher(producer, nil, outbox.Config{
		Topic:         topic,
		FlushInterval: 100 * time.Millisecond,
		BatchSize:     10,
		QueueSize:     10,
	}, testLogger())

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	go dispatcher.Start(dispatchCtx)

	service := domain.NewService(domain.NewDirectory(catalog.Default()), dispatcher)
	_, err = service.Signup(ctx, "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)
	_, err = service.Unregister(ctx, "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)

	stopDispatch()
	dispatcher.Wait()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "roster-audit-it",
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })

	audit := NewAuditHandler(testLogger())
	counting := &countingHandler{next: audit, target: 2, done: make(chan struct{})}

	runCtx, stopRun := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- NewProcessor(reader, counting, WithLogger(testLogger())).Run(runCtx) }()

	select {
	case <-counting.done:
	case <-time.After(time.Minute):
		t.Fatal("timed out waiting for membership events")
	}
	stopRun()
	require.ErrorIs(t, <-errCh, context.Canceled)

	count, ok := audit.ParticipantCount("Basketball Team")
	require.True(t, ok)
	require.Equal(t, 1, count)
}

type countingHandler struct {
	next   Handler
	seen   int
	target int
	done   chan struct{}
}

func (c *countingHandler) Handle(ctx context.Context, msg Message) error {
	if err := c.next.Handle(ctx, msg); err != nil {
		return err
	}
	c.seen++
	if c.seen == c.target {
		close(c.done)
	}
	return nil
}
