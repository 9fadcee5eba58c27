package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"gotest.tools/v3/assert"
)

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"order_id": 17, "status": "تم تسليم الطلب", "message": "enjoy"}`))
	assert.NilError(t, err)
	assert.Equal(t, ev, tracking.PushEvent{OrderID: "17", Status: domain.OrderStatusDelivered, Message: "enjoy"})

	ev, err = Decode([]byte(`{"order_id": "A-9", "status": "preparing"}`))
	assert.NilError(t, err)
	assert.Equal(t, ev.OrderID, "A-9")
	assert.Equal(t, ev.Status, domain.OrderStatusPreparing)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"order_id":`,
		"no order":      `{"status": "DELIVERED"}`,
		"null order":    `{"order_id": null, "status": "DELIVERED"}`,
		"unknown state": `{"order_id": 1, "status": "lost"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Assert(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestConsumer_ForwardsToSink(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	topic := "order-status"
	createTopic(t, brokers, topic)

	var mu sync.Mutex
	var got []tracking.PushEvent
	consumer := NewConsumer(func(ev tracking.PushEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	}, topic, "storefront-core-test", brokers)
	defer consumer.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	valid, err := json.Marshal(map[string]any{"order_id": 17, "status": "DELIVERED", "message": "done"})
	require.NoError(t, err)
	err = w.WriteMessages(ctx,
		kafkaGo.Message{Key: []byte("17"), Value: []byte(`garbage`)},
		kafkaGo.Message{Key: []byte("17"), Value: valid},
	)
	require.NoError(t, err)
	w.Close()

	go consumer.Run(ctx)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 30*time.Second, 500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, got[0].OrderID, "17")
	assert.Equal(t, got[0].Status, domain.OrderStatusDelivered)
}
