package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/models"
)

// UserLookup resolves a user's profile.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
}

// UserClient communicates with the user service via HTTP
type UserClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetUser fetches GET /users/:id. A 404 or a server error both surface as
// UserNotFound; an unreachable service as ExternalServiceUnavailable.
func (c *UserClient) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))

	var profile models.UserProfile
	if err := getJSON(ctx, c.httpClient, "user", endpoint, &profile); err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode >= 500) {
			return nil, apperrors.UserNotFound(userID, err)
		}
		if se != nil {
			return nil, err
		}
		return nil, apperrors.ExternalServiceUnavailable("user", err)
	}
	if profile.ID == "" {
		profile.ID = userID
	}
	return &profile, nil
}
