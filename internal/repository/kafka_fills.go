package repository

import (
	"context"

	"RegimeTrader/internal/domain/models"
	pkgkafka "RegimeTrader/pkg/kafka"
)

// KafkaFillPublisher streams fills as JSON keyed by symbol, so one symbol's
// fills land on one partition in order.
type KafkaFillPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaFillPublisher(producer *pkgkafka.Producer, topic string) *KafkaFillPublisher {
	return &KafkaFillPublisher{producer: producer, topic: topic}
}

func (p *KafkaFillPublisher) Publish(ctx context.Context, f models.Fill) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{fillMessage(f)})
}

func (p *KafkaFillPublisher) PublishBatch(ctx context.Context, fills []models.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(fills))
	for i, f := range fills {
		msgs[i] = fillMessage(f)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaFillPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func fillMessage(f models.Fill) pkgkafka.Message {
	return pkgkafka.Message{
		Key:     []byte(f.Symbol),
		Value:   f,
		Headers: map[string]string{"trace_id": f.RunID},
	}
}
