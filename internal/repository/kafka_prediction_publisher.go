package repository

import (
	"context"
	"fmt"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	"AgriCast/pkg/kafka"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
}

// KafkaPredictionPublisher emits forecast records to a topic, keyed by product and city
// so one series stays on one partition.
type KafkaPredictionPublisher struct {
	producer batchPublisher
	topic    string
}

func NewKafkaPredictionPublisher(producer batchPublisher, topic string) *KafkaPredictionPublisher {
	return &KafkaPredictionPublisher{producer: producer, topic: topic}
}

func (p *KafkaPredictionPublisher) SavePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Product + "|" + r.City),
			Value: r,
		})
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish predictions: %w", err)
	}
	return nil
}

// Close leaves the shared producer open; the app closes it on shutdown.
func (p *KafkaPredictionPublisher) Close() error { return nil }

var _ domrepo.PredictionSink = (*KafkaPredictionPublisher)(nil)
