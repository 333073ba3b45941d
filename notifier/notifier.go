package notifier

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const abandonedCartSubject = "Your cart is waiting for you"

// Notifier hands abandoned-cart notices to the notification transport.
type Notifier interface {
	NotifyAbandonedCart(ctx context.Context, cart models.AbandonedCart) error
}

// SQSNotifier renders the email body and enqueues it for the notification
// service.
type SQSNotifier struct {
	sender awspkg.SQSSender
	tmpl   *template.Template
}

func NewSQSNotifier(sender awspkg.SQSSender) (*SQSNotifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/abandoned_cart.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse abandoned cart template: %w", err)
	}
	return &SQSNotifier{sender: sender, tmpl: tmpl}, nil
}

// Render builds the notification payload without sending it.
func (n *SQSNotifier) Render(cart models.AbandonedCart) (models.EmailNotification, error) {
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, cart); err != nil {
		return models.EmailNotification{}, fmt.Errorf("template render failed: %w", err)
	}
	return models.EmailNotification{
		Destination: cart.CustomerEmail,
		Subject:     abandonedCartSubject,
		BodyHTML:    buf.String(),
		EventType:   models.NotificationCartAbandoned,
	}, nil
}

func (n *SQSNotifier) NotifyAbandonedCart(ctx context.Context, cart models.AbandonedCart) error {
	msg, err := n.Render(cart)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.sender.SendMessage(ctx, awspkg.Message{
		Body:       body,
		Attributes: map[string]string{"event_type": msg.EventType},
		GroupID:    msg.Destination,
	})
}

// LogNotifier is used when no queue is configured; it only logs what would
// have been sent.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyAbandonedCart(_ context.Context, cart models.AbandonedCart) error {
	n.logger.Info("Abandoned cart notice (no queue configured)",
		zap.String("destination", cart.CustomerEmail),
		zap.Int("products", len(cart.Products)),
	)
	return nil
}
