package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
	"github.com/segmentio/kafka-go"
)

var _ port.EventSink = (*Producer)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes every event to one topic, keyed by symbol so a symbol's events stay on
// one partition in order.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, ev domain.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
			{Key: "sequence", Value: []byte(strconv.FormatUint(ev.Sequence, 10))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s #%d: %w", ev.Type, ev.Sequence, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
