package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func twoLineCart(f *fixture) (*models.Cart, []models.CartLine) {
	cart := f.repo.seed(models.Cart{UserID: "user-1", Active: true, CreatedAt: time.Now()},
		models.CartLine{ProductID: "p-1", Quantity: 2, LinePriceTotal: dec("21.00")},
		models.CartLine{ProductID: "p-2", Quantity: 1, LinePriceTotal: dec("4.25")},
	)
	lines, _ := f.repo.Lines(context.Background(), cart.ID)
	return cart, lines
}

func TestBuildView_ProductFallback(t *testing.T) {
	f := newFixture(t)
	cart, lines := twoLineCart(f)
	f.products.errs["p-2"] = errors.New("timeout")

	view, err := f.composer.BuildView(context.Background(), cart, lines)
	require.NoError(t, err)
	require.Len(t, view.Products, 2)

	ok := view.Products[0]
	assert.Equal(t, "Keyboard", ok.Name)
	assert.True(t, dec("10.50").Equal(ok.UnitPrice))
	assert.True(t, ok.Available)

	failed := view.Products[1]
	assert.Equal(t, "p-2", failed.ProductID)
	assert.Equal(t, models.UnavailableProductName, failed.Name)
	assert.Equal(t, models.UnavailableProductDescription, failed.Description)
	assert.True(t, failed.UnitPrice.IsZero())
	assert.False(t, failed.Available)
	assert.Equal(t, int64(1), failed.Quantity)
	assert.True(t, dec("4.25").Equal(failed.LinePriceTotal))

	assert.Equal(t, "Ana", view.UserName)
}

func TestBuildView_UserFallback(t *testing.T) {
	f := newFixture(t)
	cart, lines := twoLineCart(f)
	f.users.errs["user-1"] = errors.New("user service down")

	view, err := f.composer.BuildView(context.Background(), cart, lines)
	require.NoError(t, err)
	assert.Equal(t, models.UnavailableUserName, view.UserName)
	assert.Equal(t, models.UnavailableUserField, view.UserAddress)
	assert.Equal(t, models.UnavailableUserField, view.UserPhone)
	assert.Len(t, view.Products, 2)
	assert.Equal(t, "Keyboard", view.Products[0].Name)
}

func TestBuildView_KeepsStoreOrder(t *testing.T) {
	f := newFixture(t)
	f.products.add("p-3", "Monitor", "100", 1)
	cart := f.repo.seed(models.Cart{UserID: "user-1", Active: true, CreatedAt: time.Now()},
		models.CartLine{ProductID: "p-1", Quantity: 1, LinePriceTotal: dec("10.50")},
		models.CartLine{ProductID: "p-2", Quantity: 1, LinePriceTotal: dec("4.25")},
		models.CartLine{ProductID: "p-3", Quantity: 1, LinePriceTotal: dec("100")},
	)
	lines, _ := f.repo.Lines(context.Background(), cart.ID)

	// first line resolves last
	delays := map[string]time.Duration{"p-1": 60 * time.Millisecond, "p-2": 30 * time.Millisecond, "p-3": 0}
	f.products.hook = func(_ context.Context, id string) { time.Sleep(delays[id]) }

	view, err := f.composer.BuildView(context.Background(), cart, lines)
	require.NoError(t, err)

	ids := make([]string, 0, len(view.Products))
	for _, p := range view.Products {
		ids = append(ids, p.ProductID)
	}
	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, ids)
}

func TestBuildView_LookupsRunConcurrently(t *testing.T) {
	f := newFixture(t)
	cart, lines := twoLineCart(f)

	// every product lookup waits until both have started; sequential
	// lookups would time out and fall back
	var started int32
	var once sync.Once
	release := make(chan struct{})
	f.products.hook = func(ctx context.Context, _ string) {
		if atomic.AddInt32(&started, 1) == int32(len(lines)) {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	view, err := f.composer.BuildView(ctx, cart, lines)
	require.NoError(t, err)
	for _, p := range view.Products {
		assert.True(t, p.Available, p.ProductID)
	}
}

func TestBuildView_CancelDoesNotWaitForLookups(t *testing.T) {
	f := newFixture(t)
	cart, lines := twoLineCart(f)

	release := make(chan struct{})
	defer close(release)
	f.products.hook = func(context.Context, string) { <-release }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.composer.BuildView(ctx, cart, lines)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBuildView_EmptyCart(t *testing.T) {
	f := newFixture(t)
	cart := &models.Cart{ID: uuid.New(), UserID: "user-1", Active: false}

	view, err := f.composer.BuildView(context.Background(), cart, nil)
	require.NoError(t, err)
	assert.NotNil(t, view.Products)
	assert.Empty(t, view.Products)
	assert.Equal(t, models.CartStatusInactive, view.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.products.calls))
}

func TestResolveAll_FailsOnAnyLookup(t *testing.T) {
	f := newFixture(t)
	_, lines := twoLineCart(f)

	user, products, err := f.composer.ResolveAll(context.Background(), "user-1", lines)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Mouse", products[1].Name)

	f.products.errs["p-2"] = errors.New("boom")
	_, _, err = f.composer.ResolveAll(context.Background(), "user-1", lines)
	assert.ErrorContains(t, err, "p-2")
}

func TestUserNames_DedupesAndFallsBack(t *testing.T) {
	f := newFixture(t)
	f.users.users["user-2"] = models.UserProfile{ID: "user-2", Name: "Luis"}

	names, err := f.composer.UserNames(context.Background(), []string{"user-1", "user-2", "user-1", "ghost"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"user-1": "Ana",
		"user-2": "Luis",
		"ghost":  models.UnavailableUserName,
	}, names)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.users.calls))
}

// wideCart seeds a cart with n lines over freshly added products.
func wideCart(f *fixture, n int) (*models.Cart, []models.CartLine) {
	lines := make([]models.CartLine, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("w-%02d", i)
		f.products.add(id, "Item "+id, "1.00", 5)
		lines = append(lines, models.CartLine{ProductID: id, Quantity: 1, LinePriceTotal: dec("1.00")})
	}
	cart := f.repo.seed(models.Cart{UserID: "user-1", Active: true, CreatedAt: time.Now()}, lines...)
	stored, _ := f.repo.Lines(context.Background(), cart.ID)
	return cart, stored
}

func TestBuildView_WideCartLookupsAllInFlight(t *testing.T) {
	f := newFixture(t)
	cart, lines := wideCart(f, 12)

	var started int32
	var once sync.Once
	release := make(chan struct{})
	f.products.hook = func(ctx context.Context, _ string) {
		if atomic.AddInt32(&started, 1) == int32(len(lines)) {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	view, err := f.composer.BuildView(ctx, cart, lines)
	require.NoError(t, err)
	require.Len(t, view.Products, 12)
	for _, p := range view.Products {
		assert.True(t, p.Available, p.ProductID)
	}
}

func TestBuildView_ExplicitCapBoundsInFlight(t *testing.T) {
	f := newFixture(t)
	cart, lines := wideCart(f, 6)
	composer := services.NewComposer(f.users, f.products, 2, awspkg.NopMetrics{}, zap.NewNop())

	var inFlight, peak int32
	f.products.hook = func(context.Context, string) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	view, err := composer.BuildView(context.Background(), cart, lines)
	require.NoError(t, err)
	assert.Len(t, view.Products, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
