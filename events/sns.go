package events

import (
	"context"
	"encoding/json"

	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
)

// SNSPublisher fans cart events out through an SNS topic. event_type is set
// as a message attribute for subscription filter policies; on FIFO topics
// events are ordered per user.
type SNSPublisher struct {
	client   awspkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client awspkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.CartEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.topicArn, awspkg.Message{
		Body:       data,
		Attributes: map[string]string{"event_type": event.EventType},
		GroupID:    event.UserID,
		DedupID:    event.CartID + ":" + event.EventType,
	})
}

func (p *SNSPublisher) Close() error { return nil }
