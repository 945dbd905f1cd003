package kafka

import (
	"context"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer wraps kafka-go Writer with streamforge defaults.
type Producer struct {
	writer *kafkago.Writer
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafkago.Compression
	RequiredAcks kafkago.RequiredAcks
	MaxAttempts  int
	// Async makes WriteMessages return before delivery is acknowledged.
	Async bool
}

// NewProducer constructs a Producer from the given configuration.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           cfg.RequiredAcks,
			Compression:            cfg.Compression,
			MaxAttempts:            cfg.MaxAttempts,
			Async:                  cfg.Async,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish sends a message keyed by key so all events of one asset land on
// the same partition.
func (p *Producer) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	return p.writer.WriteMessages(ctx, newMessage(key, value, headers))
}

func newMessage(key, value []byte, headers map[string]string) kafkago.Message {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return msg
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CompressionFromString maps textual codec to kafka-go value.
func CompressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}

// AcksFromString maps "none", "one" and "all" to kafka-go acknowledgement modes.
func AcksFromString(name string) kafkago.RequiredAcks {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "0":
		return kafkago.RequireNone
	case "one", "1":
		return kafkago.RequireOne
	default:
		return kafkago.RequireAll
	}
}
