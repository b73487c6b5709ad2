package infra

import (
	"github.com/segmentio/kafka-go"

	"beam/internal/config"
)

// NewLocationReader builds the consumer for courier position samples.
func NewLocationReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.LocationTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}
