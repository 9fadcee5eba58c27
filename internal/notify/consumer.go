// Package notify turns order-status push notifications from kafka into
// tracking.PushEvent values.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/segmentio/kafka-go"
)

var ErrMalformedMessage = errors.New("malformed status message")

// Sink receives decoded events, typically Poller.Push.
type Sink func(tracking.PushEvent)

type Consumer struct {
	reader *kafka.Reader
	sink   Sink
}

func NewConsumer(sink Sink, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, sink: sink}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.readAndForward(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		logger.L().WithError(err).Warn("error closing status reader")
	}
}

func (c *Consumer) readAndForward(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(ctx).WithError(err).Warn("error reading status message")
		}
		return
	}

	ev, err := Decode(m.Value)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("offset", m.Offset).Warn("skipping status message")
		return
	}
	c.sink(ev)
}

type statusMessage struct {
	OrderID json.RawMessage `json:"order_id"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// Decode parses a `{order_id, status, message}` payload. order_id may be a
// JSON string or number.
func Decode(data []byte) (tracking.PushEvent, error) {
	var msg statusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return tracking.PushEvent{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	orderID := strings.Trim(strings.TrimSpace(string(msg.OrderID)), `"`)
	if orderID == "" || orderID == "null" {
		return tracking.PushEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedMessage)
	}

	status := domain.ParseOrderStatus(msg.Status)
	if status == domain.OrderStatusUnknown {
		return tracking.PushEvent{}, fmt.Errorf("%w: unknown status %q", ErrMalformedMessage, msg.Status)
	}

	return tracking.PushEvent{
		OrderID: orderID,
		Status:  status,
		Message: msg.Message,
	}, nil
}
