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

// ProductLookup resolves a product's display data, price and stock.
type ProductLookup interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

// ProductClient communicates with the product/inventory service via HTTP
type ProductClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProductClient(baseURL string, timeout time.Duration) *ProductClient {
	return &ProductClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetProduct fetches GET /products/:id with the same status mapping as
// UserClient.GetUser.
func (c *ProductClient) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	endpoint := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID))

	var p models.Product
	if err := getJSON(ctx, c.httpClient, "product", endpoint, &p); err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode >= 500) {
			return nil, apperrors.ProductNotFound(productID, err)
		}
		if se != nil {
			return nil, err
		}
		return nil, apperrors.ExternalServiceUnavailable("product", err)
	}
	if p.ID == "" {
		p.ID = productID
	}
	return &p, nil
}
