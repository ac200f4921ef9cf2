// Package events publishes ledger decisions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per decision, keyed by user id so a user's
// decisions land on the same partition. Recorders run concurrently, so
// consumers order a user's decisions by created_at, not by offset.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafka creates a Publisher backed by a kafka-go writer.
func NewKafka(cfg config.EventsConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return NewPublisher(w), nil
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w, timeout: 5 * time.Second}
}

// Record implements ledger.Recorder.
func (p *Publisher) Record(ctx context.Context, d models.Decision) error {
	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(d.UserID),
		Value: value,
		Time:  d.CreatedAt,
		Headers: []kafka.Header{
			{Key: "outcome", Value: []byte(d.Outcome)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish decision %s: %w", d.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
