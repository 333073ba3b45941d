package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arka/cart-service/common/logger"
	"github.com/arka/cart-service/models"
)

// OrderSubmitter creates an order downstream.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.OrderAck, error)
}

// OrderClient communicates with the order service via HTTP
type OrderClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	return &OrderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitOrder posts the order to /orders. Any 2xx is an acknowledgement; the
// body is optional.
func (c *OrderClient) SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.OrderAck, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/orders", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", order.UserID)
	req.Header.Set("X-Request-ID", logger.RequestID(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if msg := errResp["error"]; msg != "" {
			return nil, fmt.Errorf("order service returned %d: %s", resp.StatusCode, msg)
		}
		return nil, &statusError{Service: "order", StatusCode: resp.StatusCode}
	}

	var ack models.OrderAck
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read order response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &ack); err != nil {
			return nil, fmt.Errorf("decode order response: %w", err)
		}
	}
	return &ack, nil
}
