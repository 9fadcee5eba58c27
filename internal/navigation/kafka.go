package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaNavigator publishes intents for a UI shell subscribed to topic.
type KafkaNavigator struct {
	writer *kafka.Writer
}

func NewKafkaNavigator(topic string, brokers ...string) *KafkaNavigator {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaNavigator{writer: w}
}

func (k *KafkaNavigator) Navigate(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(intent.Route),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "route", Value: []byte(intent.Route)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s intent: %w", intent.Route, err)
	}

	logger.FromContext(ctx).WithField("route", intent.Route).Debug("navigation intent published")
	return nil
}

func (k *KafkaNavigator) Close() error {
	return k.writer.Close()
}
