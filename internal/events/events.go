package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	TypeTradeExecuted = "trade.executed"
	TypeRatesRefresh  = "rates.refreshed"
)

type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"-"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher delivers events. Callers treat delivery as best effort and only
// log failures.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger logrus.FieldLogger
}

func NewKafkaPublisher(brokers []string, topic string, logger logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.logger.WithError(err).WithField("count", len(msgs)).Error("failed to publish events")
		return err
	}
	k.logger.WithField("count", len(msgs)).Debug("events published")
	return nil
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }

func encode(events []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		v, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Key), Value: v, Time: e.OccurredAt})
	}
	return msgs, nil
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

// New returns a kafka publisher, or Nop when brokers is empty.
func New(brokers []string, topic string, logger logrus.FieldLogger) Publisher {
	if len(brokers) == 0 {
		logger.Info("no kafka brokers configured, events disabled")
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic, logger)
}
