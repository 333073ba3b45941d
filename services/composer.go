package services

import (
	"context"
	"fmt"

	"github.com/arka/cart-service/clients"
	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/common/logger"
	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Composer joins stored carts with live user and product data.
type Composer struct {
	users    clients.UserLookup
	products clients.ProductLookup
	// concurrency caps in-flight lookups per cart; 0 runs every lookup at once.
	concurrency int
	metrics     awspkg.MetricsRecorder
	logger      *zap.Logger
}

func NewComposer(
	users clients.UserLookup,
	products clients.ProductLookup,
	concurrency int,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *Composer {
	if concurrency < 0 {
		concurrency = 0
	}
	return &Composer{
		users:       users,
		products:    products,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger,
	}
}

// limit sizes a fan-out of n lookups, honouring the configured cap.
func (c *Composer) limit(n int) int {
	if n < 1 {
		n = 1
	}
	if c.concurrency > 0 && c.concurrency < n {
		return c.concurrency
	}
	return n
}

// resolution holds the settled outcome of every lookup for one cart.
// products and productErrs are indexed like the lines they were built from.
type resolution struct {
	user        *models.UserProfile
	userErr     error
	products    []*models.Product
	productErrs []error
}

// resolve runs the user lookup and one product lookup per line concurrently
// and waits for all of them. Individual failures are recorded, never
// propagated, so one failing lookup does not cancel the others. The only
// error returned is ctx's, in which case outstanding lookups are abandoned.
func (c *Composer) resolve(ctx context.Context, userID string, lines []models.CartLine) (*resolution, error) {
	res := &resolution{
		products:    make([]*models.Product, len(lines)),
		productErrs: make([]error, len(lines)),
	}

	var g errgroup.Group
	g.SetLimit(c.limit(len(lines) + 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Go(func() error {
			res.user, res.userErr = c.users.GetUser(ctx, userID)
			return nil
		})
		for i := range lines {
			i := i
			g.Go(func() error {
				res.products[i], res.productErrs[i] = c.products.GetProduct(ctx, lines[i].ProductID)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BuildView composes the presentation view of cart. A failed user lookup
// yields placeholder user fields; a failed product lookup yields a
// placeholder line that keeps the stored quantity and price snapshot. Lines
// come back in store order.
func (c *Composer) BuildView(ctx context.Context, cart *models.Cart, lines []models.CartLine) (*models.CartView, error) {
	res, err := c.resolve(ctx, cart.UserID, lines)
	if err != nil {
		return nil, err
	}
	log := logger.For(ctx, c.logger)

	view := &models.CartView{
		CartID:         cart.ID,
		UserID:         cart.UserID,
		Status:         cart.Status(),
		LineCount:      cart.LineCount,
		TotalUnits:     cart.TotalUnits,
		TotalPrice:     cart.TotalPrice,
		CreatedAt:      cart.CreatedAt,
		LastMovementAt: cart.LastMovementAt,
		Products:       make([]models.LineView, 0, len(lines)),
	}

	if res.userErr != nil {
		c.fallback(log, apperrors.KindUserLookupFailed, "user_id", cart.UserID, res.userErr)
		view.UserName = models.UnavailableUserName
		view.UserAddress = models.UnavailableUserField
		view.UserPhone = models.UnavailableUserField
	} else {
		view.UserName = res.user.Name
		view.UserAddress = res.user.Address
		view.UserPhone = res.user.Phone
	}

	for i, line := range lines {
		lv := models.LineView{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			LinePriceTotal: line.LinePriceTotal,
		}
		if err := res.productErrs[i]; err != nil {
			c.fallback(log, apperrors.KindProductLookupFailed, "product_id", line.ProductID, err)
			lv.Name = models.UnavailableProductName
			lv.Description = models.UnavailableProductDescription
			lv.UnitPrice = decimal.Zero
		} else {
			p := res.products[i]
			lv.Name = p.Name
			lv.Description = p.Description
			lv.UnitPrice = p.UnitPrice
			lv.Available = true
		}
		view.Products = append(view.Products, lv)
	}

	return view, nil
}

func (c *Composer) fallback(log *zap.Logger, kind apperrors.Kind, field, id string, err error) {
	recordCount(c.metrics, awspkg.MetricEnrichmentFallbacks)
	log.Warn("Lookup failed, using placeholder",
		zap.String("kind", string(kind)),
		zap.String(field, id),
		zap.Error(err),
	)
}

// ResolveAll resolves the same data as BuildView but without placeholders:
// the first failed lookup (in user, then line order) is returned.
func (c *Composer) ResolveAll(ctx context.Context, userID string, lines []models.CartLine) (*models.UserProfile, []*models.Product, error) {
	res, err := c.resolve(ctx, userID, lines)
	if err != nil {
		return nil, nil, err
	}
	if res.userErr != nil {
		return nil, nil, fmt.Errorf("user %s: %w", userID, res.userErr)
	}
	for i, perr := range res.productErrs {
		if perr != nil {
			return nil, nil, fmt.Errorf("product %s: %w", lines[i].ProductID, perr)
		}
	}
	return res.user, res.products, nil
}

// UserNames resolves display names for many users at once, substituting the
// unavailable placeholder for any failed lookup.
func (c *Composer) UserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	unique := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	names := make([]string, len(unique))
	var g errgroup.Group
	g.SetLimit(c.limit(len(unique)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, id := range unique {
			i, id := i, id
			g.Go(func() error {
				u, err := c.users.GetUser(ctx, id)
				if err != nil {
					c.fallback(logger.For(ctx, c.logger), apperrors.KindUserLookupFailed, "user_id", id, err)
					names[i] = models.UnavailableUserName
					return nil
				}
				names[i] = u.Name
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := make(map[string]string, len(unique))
	for i, id := range unique {
		out[id] = names[i]
	}
	return out, nil
}
