package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/storefront/internal/logger"
)

const readRetryDelay = time.Second

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Type),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads events published by any instance and hands them to a
// local callback, normally Hub.Deliver.
type KafkaConsumer struct {
	reader     *kafka.Reader
	log        *logger.Logger
	retryDelay time.Duration
}

// NewKafkaConsumer joins groupID. Each instance needs its own group so that
// every instance sees every event.
func NewKafkaConsumer(topic, groupID string, log *logger.Logger, brokers ...string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &KafkaConsumer{
		reader:     reader,
		log:        log.With("component", "KafkaConsumer"),
		retryDelay: readRetryDelay,
	}
}

// Run forwards events until ctx is done or the reader is closed. Read
// failures are retried after readRetryDelay.
func (c *KafkaConsumer) Run(ctx context.Context, onMsg func(Event)) {
	for {
		err := c.forwardNext(ctx, onMsg)
		switch {
		case err == nil:
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			c.log.Info("kafka reader closed")
			return
		}
		c.log.Warn("error reading message", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

// forwardNext reads one message. Only read errors are returned; a message
// that fails to parse is logged and skipped.
func (c *KafkaConsumer) forwardNext(ctx context.Context, onMsg func(Event)) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var ev Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Warn("error parsing message", "error", err, "offset", m.Offset)
		return nil
	}
	onMsg(ev)
	return nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
