package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Record is one accepted setpoint write.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Peer      string    `json:"peer"`
	Target    string    `json:"target"` // magnet or array name
	Quantity  string    `json:"quantity"`
	Values    []float64 `json:"values"`
	Units     []string  `json:"units"`
	User      string    `json:"user,omitempty"`
}

type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// New returns a Kafka sink, or a no-op sink when the journal is disabled.
func New(cfg config.JournalConfig, metrics *observability.Metrics, logger *zap.Logger) Sink {
	if !cfg.Enabled {
		return Nop{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("Setpoint journal enabled",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return newKafka(w, metrics, logger)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes records as JSON keyed by target, so all writes to one
// magnet or array land on one partition in order.
type Kafka struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *zap.Logger
}

func newKafka(w messageWriter, metrics *observability.Metrics, logger *zap.Logger) *Kafka {
	return &Kafka{writer: w, metrics: metrics, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.Target), Value: b, Time: rec.Timestamp})
	k.metrics.JournalRecord(err)
	if err != nil {
		k.logger.Error("Journal write failed", zap.String("target", rec.Target), zap.Error(err))
		return fmt.Errorf("journal write failed: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type Nop struct{}

func (Nop) Publish(context.Context, Record) error { return nil }
func (Nop) Close() error                          { return nil }
