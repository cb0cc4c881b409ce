package sender

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig selects the brokers and the topic for batch uploads.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSender publishes batches to a topic, keyed by user so one user's
// batches stay ordered within a partition.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(cfg KafkaConfig) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (k *KafkaSender) SendBatch(ctx context.Context, req IngestRequest) error {
	msg, err := batchMessage(req, time.Now())
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}

func batchMessage(req IngestRequest, now time.Time) (kafka.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(req.UserID),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "batch_id", Value: []byte(req.BatchID)},
			{Key: "hash", Value: []byte(req.Hash)},
		},
	}, nil
}
