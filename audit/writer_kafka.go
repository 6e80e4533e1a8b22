package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaWriter publishes records as JSON, keyed by service so a service's
// records stay on one partition.
type KafkaWriter struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer builds a sync producer from cfg
func NewKafkaProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
		sc.Net.DialTimeout = cfg.Timeout
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaWriter wraps an existing producer
func NewKafkaWriter(producer sarama.SyncProducer, topic string) *KafkaWriter {
	return &KafkaWriter{producer: producer, topic: topic}
}

func (w *KafkaWriter) Name() string { return "kafka:" + w.topic }

func (w *KafkaWriter) Write(_ context.Context, records []Record) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return ErrWrite.Wrap(err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:     w.topic,
			Key:       sarama.StringEncoder(r.Service),
			Value:     sarama.ByteEncoder(value),
			Timestamp: r.Timestamp,
			Headers: []sarama.RecordHeader{
				{Key: []byte("kind"), Value: []byte(r.Kind)},
			},
		})
	}
	if err := w.producer.SendMessages(msgs); err != nil {
		return ErrWrite.Wrap(err)
	}
	return nil
}

func (w *KafkaWriter) Close() error {
	return w.producer.Close()
}
