package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/application"
	"github.com/segmentio/kafka-go"
)

// Producer publishes order lifecycle events keyed by business order id, so
// all events of one order land on the same partition.
type Producer struct {
	w *kafka.Writer
}

var _ application.EventPublisher = (*Producer)(nil)

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Close() error {
	return p.w.Close()
}

func (p *Producer) Publish(ctx context.Context, e application.OrderEvent) error {
	msg, err := eventMessage(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event for %s: %w", e.Type, e.OrderID, err)
	}
	return nil
}

func eventMessage(e application.OrderEvent) (kafka.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal order event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.OrderID),
		Value: b,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}
