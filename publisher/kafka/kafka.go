// Package kafka provides an academic.EventPublisher that writes committed
// student record events to a Kafka topic using github.com/segmentio/kafka-go.
//
// Messages are keyed by student ID and balanced by key hash, so every event
// of one student lands on the same partition in version order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	academic "github.com/songifi/LMS-Backend-sub004"
)

// DefaultTopic receives every event unless a topic function is configured.
const DefaultTopic = "academic.student-records"

// Writer is the subset of *kafkago.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TopicFunc chooses the destination topic for a message.
type TopicFunc func(msg academic.EventMessage) string

// Publisher publishes committed events to Kafka.
type Publisher struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	topicFor     TopicFunc
	newWriter    func(topic string) Writer

	mu      sync.RWMutex
	writers map[string]Writer
}

var _ academic.EventPublisher = (*Publisher)(nil)

// Option configures a Kafka Publisher.
type Option func(*Publisher)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Publisher) {
		p.brokers = brokers
	}
}

// WithBalancer sets the message balancer (partitioner).
// Balancers that ignore the key lose per-student ordering.
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Publisher) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writer.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.batchTimeout = d
	}
}

// WithTopic sends every event to topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topicFor = func(academic.EventMessage) string { return topic }
	}
}

// WithTopicFunc routes each event with fn, for example one topic per event type.
func WithTopicFunc(fn TopicFunc) Option {
	return func(p *Publisher) {
		p.topicFor = fn
	}
}

// WithWriterFactory replaces the kafka-go writer constructor.
func WithWriterFactory(fn func(topic string) Writer) Option {
	return func(p *Publisher) {
		p.newWriter = fn
	}
}

// New creates a new Kafka Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		writers:      make(map[string]Writer),
	}
	p.topicFor = func(academic.EventMessage) string { return DefaultTopic }

	for _, opt := range opts {
		opt(p)
	}

	if p.newWriter == nil {
		p.newWriter = p.kafkaWriter
	}
	return p
}

// Name implements academic.EventPublisher.
func (p *Publisher) Name() string {
	return "kafka"
}

// Publish implements academic.EventPublisher.
// Every topic is attempted even if some fail; errors are joined.
func (p *Publisher) Publish(ctx context.Context, events []academic.DomainEvent) error {
	grouped := make(map[string][]kafkago.Message)
	var order []string
	var errs []error

	for _, event := range events {
		msg, err := academic.NewEventMessage(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to encode event %s: %w", event.ID, err))
			continue
		}

		topic := p.topicFor(msg)
		if topic == "" {
			errs = append(errs, fmt.Errorf("kafka: no topic for event type %s", msg.EventType))
			continue
		}

		body, err := msg.Body()
		if err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to encode event %s: %w", event.ID, err))
			continue
		}

		kafkaMsg := kafkago.Message{
			Key:   []byte(msg.StudentID),
			Value: body,
			Time:  msg.Timestamp,
		}
		for k, v := range msg.Headers {
			kafkaMsg.Headers = append(kafkaMsg.Headers, kafkago.Header{
				Key:   k,
				Value: []byte(v),
			})
		}

		if _, seen := grouped[topic]; !seen {
			order = append(order, topic)
		}
		grouped[topic] = append(grouped[topic], kafkaMsg)
	}

	for _, topic := range order {
		writer := p.getWriter(topic)
		if err := writer.WriteMessages(ctx, grouped[topic]...); err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to write to topic %s: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

// getWriter returns or creates the writer for topic.
func (p *Publisher) getWriter(topic string) Writer {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) kafkaWriter(topic string) Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		Transport:              p.transport,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
