// Package sns provides an academic.EventPublisher that sends committed
// student record events to an AWS SNS topic.
package sns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	academic "github.com/songifi/LMS-Backend-sub004"
)

// SNSClient defines the subset of the SNS API used by the publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher publishes committed events to one SNS topic.
//
// For FIFO topics (ARN ending in ".fifo") the message group is the student
// ID, which keeps each student's events ordered, and the event ID is used
// for deduplication.
type Publisher struct {
	client   SNSClient
	topicARN string
}

var _ academic.EventPublisher = (*Publisher)(nil)

// Option configures an SNS Publisher.
type Option func(*Publisher)

// WithSNSClient sets a custom SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTopicARN sets the destination topic.
func WithTopicARN(arn string) Option {
	return func(p *Publisher) {
		p.topicARN = arn
	}
}

// New creates a new SNS Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name implements academic.EventPublisher.
func (p *Publisher) Name() string {
	return "sns"
}

// Publish implements academic.EventPublisher.
// Events are sent one by one in the given order and a failure does not stop
// the remaining events; errors are joined.
func (p *Publisher) Publish(ctx context.Context, events []academic.DomainEvent) error {
	if p.client == nil {
		return fmt.Errorf("sns: client not configured")
	}
	if p.topicARN == "" {
		return fmt.Errorf("sns: topic ARN not configured")
	}
	fifo := strings.HasSuffix(p.topicARN, ".fifo")

	var errs []error
	for _, event := range events {
		msg, err := academic.NewEventMessage(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to encode event %s: %w", event.ID, err))
			continue
		}
		body, err := msg.Body()
		if err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to encode event %s: %w", event.ID, err))
			continue
		}

		input := &sns.PublishInput{
			TopicArn: stringPtr(p.topicARN),
			Message:  stringPtr(string(body)),
			Subject:  stringPtr(msg.EventType),
		}

		if len(msg.Headers) > 0 {
			input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(msg.Headers))
			for k, v := range msg.Headers {
				input.MessageAttributes[k] = types.MessageAttributeValue{
					DataType:    stringPtr("String"),
					StringValue: stringPtr(v),
				}
			}
		}

		if fifo {
			input.MessageGroupId = stringPtr(msg.StudentID)
			input.MessageDeduplicationId = stringPtr(msg.ID)
		}

		if _, err := p.client.Publish(ctx, input); err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to publish %s v%d to %s: %w", msg.StudentID, msg.Version, p.topicARN, err))
		}
	}

	return errors.Join(errs...)
}

func stringPtr(s string) *string {
	return &s
}
