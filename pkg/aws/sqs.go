package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSender enqueues a Message on a fixed queue.
type SQSSender interface {
	SendMessage(ctx context.Context, msg Message) error
}

// SQSProducer is the SQSSender for one queue URL.
type SQSProducer struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSProducer(cfg sdkaws.Config, queueURL string) *SQSProducer {
	return &SQSProducer{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

func (p *SQSProducer) SendMessage(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          sdkaws.String(p.queueURL),
		MessageBody:       sdkaws.String(string(msg.Body)),
		MessageAttributes: sqsAttributes(msg.Attributes),
	}
	if isFIFO(p.queueURL) {
		input.MessageGroupId = optional(msg.GroupID)
		input.MessageDeduplicationId = optional(msg.DedupID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send to %s: %w", p.queueURL, err)
	}
	return nil
}

func sqsAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		out[k] = types.MessageAttributeValue{DataType: sdkaws.String("String"), StringValue: sdkaws.String(v)}
	}
	return out
}
