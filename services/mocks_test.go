package services_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/lock"
	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"github.com/arka/cart-service/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---- in-memory cart repository ----

type memRepo struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*models.Cart
	lines map[uuid.UUID][]models.CartLine

	conflicts     int
	applyCalls    int
	deleteErr     error
	markErr       error
	deactivateErr map[uuid.UUID]error
	deleted       chan uuid.UUID
	deleteCtxErr  error
	// deleteGate, when set, holds Delete until it is closed.
	deleteGate chan struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{
		carts:         make(map[uuid.UUID]*models.Cart),
		lines:         make(map[uuid.UUID][]models.CartLine),
		deactivateErr: make(map[uuid.UUID]error),
		deleted:       make(chan uuid.UUID, 16),
	}
}

// seed stores a cart with the given lines and consistent aggregates.
func (m *memRepo) seed(cart models.Cart, lines ...models.CartLine) *models.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.Version == 0 {
		cart.Version = 1
	}
	for i := range lines {
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
		lines[i].CartID = cart.ID
	}
	cart.Recompute(lines)
	c := cart
	m.carts[c.ID] = &c
	m.lines[c.ID] = append([]models.CartLine(nil), lines...)
	out := c
	return &out
}

func (m *memRepo) get(id uuid.UUID) (models.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return models.Cart{}, false
	}
	return *c, true
}

func (m *memRepo) FindByUserID(_ context.Context, userID string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID {
			out := *c
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memRepo) Create(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == cart.UserID {
			return repository.ErrDuplicateCart
		}
	}
	cart.ID = uuid.New()
	c := *cart
	m.carts[c.ID] = &c
	return nil
}

func (m *memRepo) Lines(_ context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CartLine(nil), m.lines[cartID]...), nil
}

func (m *memRepo) Apply(_ context.Context, cart *models.Cart, changes models.LineChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	stored, ok := m.carts[cart.ID]
	if !ok || stored.Version != cart.Version {
		return repository.ErrVersionConflict
	}
	if m.conflicts > 0 {
		m.conflicts--
		stored.Version++
		return repository.ErrVersionConflict
	}

	lines := m.lines[cart.ID]
	for _, id := range changes.Delete {
		for i := range lines {
			if lines[i].ID == id {
				lines = append(lines[:i:i], lines[i+1:]...)
				break
			}
		}
	}
	for _, l := range changes.Upsert {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
			l.CartID = cart.ID
			lines = append(lines, *l)
			continue
		}
		for i := range lines {
			if lines[i].ID == l.ID {
				lines[i] = *l
			}
		}
	}
	m.lines[cart.ID] = lines

	updated := *cart
	updated.Version = cart.Version + 1
	m.carts[cart.ID] = &updated
	cart.Version++
	return nil
}

func (m *memRepo) Delete(ctx context.Context, cartID uuid.UUID, version int64) (bool, error) {
	m.mu.Lock()
	gate := m.deleteGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCtxErr = ctx.Err()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	stored, ok := m.carts[cartID]
	if !ok || stored.Version != version {
		return false, nil
	}
	delete(m.carts, cartID)
	delete(m.lines, cartID)
	m.deleted <- cartID
	return true, nil
}

func (m *memRepo) sorted(keep func(*models.Cart) bool) []models.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Cart, 0, len(m.carts))
	for _, c := range m.carts {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memRepo) FindAll(context.Context) ([]models.Cart, error) {
	return m.sorted(func(*models.Cart) bool { return true }), nil
}

func (m *memRepo) FindInactive(context.Context) ([]models.Cart, error) {
	return m.sorted(func(c *models.Cart) bool { return !c.Active }), nil
}

// FindIdleActive returns every active cart so the sweeper's own cutoff check
// is what decides.
func (m *memRepo) FindIdleActive(context.Context, time.Time) ([]models.Cart, error) {
	return m.sorted(func(c *models.Cart) bool { return c.Active }), nil
}

func (m *memRepo) FindInactiveUnnotified(context.Context) ([]models.Cart, error) {
	return m.sorted(func(c *models.Cart) bool { return !c.Active && !c.NotificationSent && c.LineCount > 0 }), nil
}

func (m *memRepo) Deactivate(_ context.Context, cartID uuid.UUID, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deactivateErr[cartID]; err != nil {
		return false, err
	}
	c, ok := m.carts[cartID]
	if !ok || !c.IdleBefore(cutoff) {
		return false, nil
	}
	c.Active = false
	return true, nil
}

func (m *memRepo) MarkNotified(_ context.Context, cartID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	c, ok := m.carts[cartID]
	if !ok || c.Active {
		return false, nil
	}
	c.NotificationSent = true
	return true, nil
}

// ---- lookups ----

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.UserProfile
	errs  map[string]error
	calls int32
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]models.UserProfile), errs: make(map[string]error)}
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*models.UserProfile, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, apperrors.UserNotFound(userID, nil)
	}
	return &u, nil
}

type fakeProducts struct {
	mu       sync.Mutex
	products map[string]models.Product
	errs     map[string]error
	// hook, when set, runs before each lookup resolves.
	hook  func(ctx context.Context, productID string)
	calls int32
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: make(map[string]models.Product), errs: make(map[string]error)}
}

func (f *fakeProducts) add(id, name string, price string, stock int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := stock
	f.products[id] = models.Product{
		ID:          id,
		Name:        name,
		Description: name + " description",
		UnitPrice:   decimal.RequireFromString(price),
		Stock:       &s,
	}
}

func (f *fakeProducts) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.hook != nil {
		f.hook(ctx, productID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[productID]; err != nil {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, apperrors.ProductNotFound(productID, nil)
	}
	return &p, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	requests []models.OrderRequest
	err      error
}

func (f *fakeOrders) SubmitOrder(_ context.Context, order models.OrderRequest) (*models.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, order)
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderAck{OrderID: "order-" + order.UserID}, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// ---- events, notifier, idempotency ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.CartEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e models.CartEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingNotifier struct {
	sent []models.AbandonedCart
	err  error
}

func (n *recordingNotifier) NotifyAbandonedCart(_ context.Context, cart models.AbandonedCart) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, cart)
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memIdempotency) Get(_ context.Context, userID, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[userID+"|"+key]
	return v, ok, nil
}

func (m *memIdempotency) Set(_ context.Context, userID, key string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[userID+"|"+key] = payload
	return nil
}

// ---- fixture ----

type fixture struct {
	repo     *memRepo
	users    *fakeUsers
	products *fakeProducts
	orders   *fakeOrders
	events   *recordingPublisher
	composer *services.Composer
	carts    services.CartService
	checkout services.CheckoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		users:    newFakeUsers(),
		products: newFakeProducts(),
		orders:   &fakeOrders{},
		events:   &recordingPublisher{},
	}
	f.users.users["user-1"] = models.UserProfile{ID: "user-1", Name: "Ana", Email: "ana@example.com", Address: "Calle 1", Phone: "555-0101"}
	f.products.add("p-1", "Keyboard", "10.50", 10)
	f.products.add("p-2", "Mouse", "4.25", 3)

	logger := zap.NewNop()
	metrics := awspkg.NopMetrics{}
	locker := lock.NewKeyedMutex()

	f.composer = services.NewComposer(f.users, f.products, 0, metrics, logger)
	f.carts = services.NewCartService(f.repo, f.products, f.composer, locker, 3, metrics, logger)
	f.checkout = services.NewCheckoutService(f.repo, f.orders, f.composer, locker, &memIdempotency{}, f.events,
		services.CheckoutConfig{CleanupTimeout: time.Second, IdempotencyTTL: time.Hour}, metrics, logger)
	return f
}

// ---- metrics ----

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]++
	return nil
}

func (m *countingMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (m *countingMetrics) IsEnabled() bool { return true }

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
