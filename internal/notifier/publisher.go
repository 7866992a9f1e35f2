package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/contract"
	"HealthSentinel/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher receives the results of a completed run.
type Publisher interface {
	Publish(ctx context.Context, results []model.CustomerResult) error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one health report per customer, keyed by customer id.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher creates a publisher for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

// Publish encodes every result that carries a snapshot and writes them as one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, results []model.CustomerResult) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	p.mu.Unlock()

	msgs := make([]kafka.Message, 0, len(results))
	for _, res := range results {
		value, err := contract.Encode(res)
		if errors.Is(err, contract.ErrNoSnapshot) {
			continue
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", res.CustomerID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(res.CustomerID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte("application/json")},
				{Key: "status", Value: []byte(res.Status)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d health reports: %w", len(msgs), err)
	}
	p.logger.Debug("published health reports", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// Sender delivers a formatted message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// DigestPublisher sends a Telegram digest of the alerts raised in a run.
type DigestPublisher struct {
	sender  Sender
	floor   model.Severity
	retries int
	now     func() time.Time
}

// NewDigestPublisher only reports alerts at or above floor.
func NewDigestPublisher(sender Sender, floor model.Severity) *DigestPublisher {
	if floor == "" {
		floor = model.SeverityHigh
	}
	return &DigestPublisher{sender: sender, floor: floor, retries: 3, now: time.Now}
}

func (d *DigestPublisher) Publish(ctx context.Context, results []model.CustomerResult) error {
	msg := FormatAlertDigest(results, d.now(), d.floor)
	if msg == "" {
		return nil
	}
	return d.sender.SendWithRetry(ctx, msg, d.retries)
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, results []model.CustomerResult) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
