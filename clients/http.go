package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arka/cart-service/common/logger"
)

// statusError is a non-2xx response from a downstream service.
type statusError struct {
	Service    string
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s service returned %d", e.Service, e.StatusCode)
}

// getJSON issues a GET and decodes a 200 body into out. Transport failures
// are returned wrapped; non-200 responses come back as *statusError.
func getJSON(ctx context.Context, client *http.Client, service, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", logger.RequestID(ctx))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s service request failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &statusError{Service: service, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", service, err)
	}
	return nil
}
