package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishKeysByTarget(t *testing.T) {
	w := &captureWriter{}
	k := newKafka(w, nil, zap.NewNop())

	rec := Record{Peer: "live", Target: "QUADS", Quantity: "strengths", Values: []float64{0.1, -0.2}, Units: []string{"1/m", "1/m"}}
	if err := k.Publish(context.Background(), rec); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("%d messages written", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "QUADS" {
		t.Fatalf("key = %q", msg.Key)
	}

	var got Record
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID.String() == "00000000-0000-0000-0000-000000000000" || got.Timestamp.IsZero() {
		t.Fatalf("record not stamped: %+v", got)
	}
	if got.Values[1] != -0.2 || got.Peer != "live" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestPublishReportsWriterError(t *testing.T) {
	k := newKafka(&captureWriter{err: errors.New("broker down")}, nil, zap.NewNop())
	if err := k.Publish(context.Background(), Record{Target: "QF1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDisabledJournalIsNop(t *testing.T) {
	sink := New(config.JournalConfig{Enabled: false}, nil, zap.NewNop())
	if _, ok := sink.(Nop); !ok {
		t.Fatalf("disabled journal is %T", sink)
	}
	if err := sink.Publish(context.Background(), Record{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
