package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	topic string
	msg   awspkg.Message
	err   error
}

func (m *mockSNS) Publish(_ context.Context, topicArn string, msg awspkg.Message) error {
	m.topic = topicArn
	m.msg = msg
	return m.err
}

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func sampleEvent() models.CartEvent {
	return models.CartEvent{
		EventType:  models.EventCartCheckedOut,
		CartID:     "c-1",
		UserID:     "u-1",
		OrderID:    "o-1",
		LineCount:  2,
		TotalUnits: 3,
		TotalPrice: decimal.RequireFromString("30.50"),
		Timestamp:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSNSPublisher_Publish(t *testing.T) {
	sns := &mockSNS{}
	p := NewSNSPublisher(sns, "arn:aws:sns:us-east-1:000000000000:cart-events")

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:cart-events", sns.topic)
	assert.Equal(t, models.EventCartCheckedOut, sns.msg.Attributes["event_type"])
	assert.Equal(t, "u-1", sns.msg.GroupID)
	assert.Equal(t, "c-1:"+models.EventCartCheckedOut, sns.msg.DedupID)

	var got models.CartEvent
	require.NoError(t, json.Unmarshal(sns.msg.Body, &got))
	assert.Equal(t, "o-1", got.OrderID)
	assert.True(t, decimal.RequireFromString("30.50").Equal(got.TotalPrice))
}

func TestSNSPublisher_Error(t *testing.T) {
	p := NewSNSPublisher(&mockSNS{err: errors.New("throttled")}, "arn")
	assert.Error(t, p.Publish(context.Background(), sampleEvent()))
}

func TestKafkaPublisher_KeysByUser(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u-1"), w.msgs[0].Key)
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(models.EventCartCheckedOut), w.msgs[0].Headers[0].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}
