package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sender hands one rendered notification to the delivery channel.
type Sender interface {
	Send(ctx context.Context, rec Record) error
}

type message struct {
	ID            string    `json:"id"`
	ReservationID *string   `json:"reservation_id,omitempty"`
	Recipient     string    `json:"recipient"`
	Type          Type      `json:"type"`
	Message       string    `json:"message"`
	Attempt       int       `json:"attempt"`
	CreatedAt     time.Time `json:"created_at"`
}

// KafkaSender publishes notifications for the SMS and email workers.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaSender) Send(ctx context.Context, rec Record) error {
	msg := message{
		ID:        rec.ID.String(),
		Recipient: rec.Recipient,
		Type:      rec.Type,
		Message:   rec.Message,
		Attempt:   rec.RetryCount,
		CreatedAt: rec.CreatedAt,
	}
	key := rec.ID.String()
	if rec.ReservationID != nil {
		rid := rec.ReservationID.String()
		msg.ReservationID = &rid
		key = rid
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(rec.Type)},
		},
	})
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}

// LogSender only logs. Used in dev where no broker runs.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{log: logger}
}

func (l *LogSender) Send(_ context.Context, rec Record) error {
	l.log.Info("notification",
		zap.Stringer("id", rec.ID),
		zap.String("recipient", rec.Recipient),
		zap.String("type", string(rec.Type)),
		zap.String("message", rec.Message),
	)
	return nil
}
