package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-orders/internal/domain/auth"
	"github.com/xenking/pizza-orders/internal/domain/cart"
	"github.com/xenking/pizza-orders/internal/domain/catalog"
	"github.com/xenking/pizza-orders/internal/domain/coupon"
	"github.com/xenking/pizza-orders/internal/domain/customer"
	"github.com/xenking/pizza-orders/internal/domain/payment"
	"github.com/xenking/pizza-orders/internal/domain/pricing"
)

// --- Mock implementations ---

type mockSnapshot struct {
	products map[string]*catalog.ProductPricing
	toppings map[string]*catalog.ToppingPricing
}

func (m *mockSnapshot) Product(_ context.Context, id string) (*catalog.ProductPricing, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrNotCached
}

func (m *mockSnapshot) Topping(_ context.Context, id string) (*catalog.ToppingPricing, error) {
	if t, ok := m.toppings[id]; ok {
		return t, nil
	}
	return nil, catalog.ErrNotCached
}

type mockCouponRepo struct {
	coupon *coupon.Coupon
	err    error
}

func (m *mockCouponRepo) FindActive(_ context.Context, _, _ string, _ time.Time) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.coupon == nil {
		return nil, coupon.ErrNotFound
	}
	return m.coupon, nil
}

type mockCustomerRepo struct {
	customers map[string]*customer.Customer
}

func (m *mockCustomerRepo) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	if c, ok := m.customers[id]; ok {
		return c, nil
	}
	return nil, customer.ErrNotFound
}

// mockStore implements Repository and IdempotencyStore over one shared map,
// mimicking the atomic order+idempotency write.
type mockStore struct {
	mu        sync.Mutex
	byKey     map[string]*Order
	byID      map[string]*Order
	creates   int
	createErr error
	// onMiss runs after a failed Lookup, letting tests interleave a
	// concurrent winner between lookup and create.
	onMiss func()
}

func newMockStore() *mockStore {
	return &mockStore{
		byKey: make(map[string]*Order),
		byID:  make(map[string]*Order),
	}
}

func (m *mockStore) Create(_ context.Context, o *Order, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicateIdempotencyKey
	}
	cp := *o
	m.byKey[key] = &cp
	m.byID[o.ID] = &cp
	m.creates++
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockStore) ListByCustomer(_ context.Context, customerID, tenantID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if o.CustomerID == customerID && o.TenantID == tenantID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id string, status Status) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *mockStore) UpdatePaymentStatus(_ context.Context, id string, status PaymentStatus, paymentID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.PaymentStatus = status
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) Lookup(_ context.Context, key string) (*Order, error) {
	m.mu.Lock()
	o, ok := m.byKey[key]
	onMiss := m.onMiss
	m.mu.Unlock()
	if !ok {
		if onMiss != nil {
			onMiss()
		}
		return nil, ErrNoIdempotencyRecord
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockGateway struct {
	session   *payment.Session
	verified  *payment.VerifiedSession
	createErr error
	lastOpts  payment.SessionOptions
	createCnt int
}

func (m *mockGateway) CreateSession(_ context.Context, opts payment.SessionOptions) (*payment.Session, error) {
	m.lastOpts = opts
	m.createCnt++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.session, nil
}

func (m *mockGateway) GetSession(_ context.Context, _ string) (*payment.VerifiedSession, error) {
	return m.verified, nil
}

type published struct {
	topic string
	key   string
	msg   []byte
}

type mockPublisher struct {
	mu     sync.Mutex
	msgs   []published
	pubErr error
}

func (m *mockPublisher) Publish(_ context.Context, topic, key string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pubErr != nil {
		return m.pubErr
	}
	m.msgs = append(m.msgs, published{topic: topic, key: key, msg: msg})
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// --- Helpers ---

type fixture struct {
	svc       *Service
	store     *mockStore
	gateway   *mockGateway
	publisher *mockPublisher
	coupons   *mockCouponRepo
}

func newFixture() *fixture {
	snap := &mockSnapshot{
		products: map[string]*catalog.ProductPricing{
			"margherita": {
				ProductID: "margherita",
				PriceConfiguration: map[string]catalog.OptionGroup{
					"size": {
						PriceType: catalog.PriceTypeBase,
						AvailableOptions: map[string]decimal.Decimal{
							"medium": decimal.NewFromInt(400),
							"large":  decimal.NewFromInt(500),
						},
					},
				},
			},
		},
		toppings: map[string]*catalog.ToppingPricing{
			"olives": {ToppingID: "olives", Price: decimal.NewFromInt(100)},
		},
	}

	f := &fixture{
		store:     newMockStore(),
		gateway:   &mockGateway{session: &payment.Session{ID: "sess_1", PaymentURL: "https://pay.example/s/1"}},
		publisher: &mockPublisher{},
		coupons:   &mockCouponRepo{},
	}
	customers := &mockCustomerRepo{customers: map[string]*customer.Customer{
		"cust-1": {ID: "cust-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
	}}
	f.svc = NewService(snap, f.coupons, customers, f.store, f.store, f.gateway, f.publisher)
	return f
}

func cashRequest() CreateRequest {
	return CreateRequest{
		Cart: []cart.Item{{
			ProductID: "margherita",
			Name:      "Margherita",
			Qty:       2,
			Chosen: cart.ChosenConfiguration{
				Options:          map[string]string{"size": "medium"},
				SelectedToppings: []cart.SelectedTopping{{ID: "olives"}},
			},
		}},
		Address:        customer.Address{Label: "Home", Text: "1 Main St", City: "Pune", PostalCode: "411001", Phone: "+911234567890"},
		CustomerID:     "cust-1",
		TenantID:       "tenant-1",
		PaymentMode:    PaymentModeCash,
		IdempotencyKey: "idem-1",
	}
}

// --- Create ---

func TestCreate_RequiresIdempotencyKey(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.IdempotencyKey = ""

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingIdempotency)
}

func TestCreate_EmptyCart(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.Cart = nil

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreate_CashOrder(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	// 2 * (400 + 100) = 1000; no coupon; taxes 180; free delivery.
	o := res.Order
	assert.True(t, decimal.NewFromInt(1180).Equal(o.Total), "total %s", o.Total)
	assert.True(t, o.Discount.IsZero())
	assert.True(t, decimal.NewFromInt(180).Equal(o.Taxes), "taxes %s", o.Taxes)
	assert.True(t, o.DeliveryCharges.IsZero())
	assert.Equal(t, StatusReceived, o.Status)
	assert.Equal(t, PaymentStatusPending, o.PaymentStatus)
	assert.Empty(t, res.PaymentURL)

	assert.Equal(t, 1, f.store.creates)
	assert.Equal(t, 0, f.gateway.createCnt)
	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, o.ID, f.publisher.msgs[0].key)
}

func TestCreate_CardOrder(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.PaymentMode = PaymentModeCard

	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/s/1", res.PaymentURL)
	assert.Equal(t, "sess_1", res.Order.PaymentID)
	assert.Equal(t, "idem-1", f.gateway.lastOpts.IdempotencyKey)
	assert.True(t, res.Order.Total.Equal(f.gateway.lastOpts.Amount))
	assert.Equal(t, res.Order.ID, f.gateway.lastOpts.OrderID)
	assert.Equal(t, 1, f.publisher.count())
}

func TestCreate_WithCoupon(t *testing.T) {
	f := newFixture()
	f.coupons.coupon = &coupon.Coupon{
		Code:      "SAVE10",
		TenantID:  "tenant-1",
		Discount:  decimal.NewFromInt(10),
		ValidTill: time.Now().Add(time.Hour),
	}
	req := cashRequest()
	req.CouponCode = "SAVE10"

	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	// 1000 - 100 discount = 900; taxes 162; final 1062.
	assert.True(t, decimal.NewFromInt(100).Equal(res.Order.Discount), "discount %s", res.Order.Discount)
	assert.True(t, decimal.NewFromInt(1062).Equal(res.Order.Total), "total %s", res.Order.Total)
}

func TestCreate_MissingCouponMeansZeroDiscount(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.CouponCode = "EXPIRED"

	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Order.Discount.IsZero())
}

func TestCreate_PricingFailureRejected(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.Cart[0].ProductID = "unknown"

	_, err := f.svc.Create(context.Background(), req)

	var rejected *PricingRejectedError
	require.ErrorAs(t, err, &rejected)

	var missing *pricing.MissingCacheEntryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "unknown", missing.ItemID)
	assert.Equal(t, 0, f.store.creates)
}

func TestCreate_ReplaySameKey(t *testing.T) {
	f := newFixture()

	first, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, first.Order.Total.Equal(second.Order.Total))
	assert.Equal(t, 1, f.store.creates, "exactly one persisted order")
	// Both requests announce the outcome.
	assert.Equal(t, 2, f.publisher.count())
}

func TestCreate_RaceLoserReplaysWinner(t *testing.T) {
	f := newFixture()

	winner := &Order{ID: "winner", CustomerID: "cust-1", TenantID: "tenant-1", Total: decimal.NewFromInt(1180)}
	var once sync.Once
	f.store.onMiss = func() {
		// Simulate a concurrent request committing between our lookup and
		// our write.
		once.Do(func() {
			f.store.mu.Lock()
			f.store.byKey["idem-1"] = winner
			f.store.byID["winner"] = winner
			f.store.mu.Unlock()
		})
	}

	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	assert.Equal(t, "winner", res.Order.ID)
	assert.Equal(t, 0, f.store.creates, "loser must not insert a second order")
}

func TestCreate_PersistenceFailure(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), cashRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 0, f.publisher.count())
}

func TestCreate_GatewayFailureAfterCommit(t *testing.T) {
	f := newFixture()
	f.gateway.createErr = errors.New("gateway unavailable")
	req := cashRequest()
	req.PaymentMode = PaymentModeCard

	_, err := f.svc.Create(context.Background(), req)

	var sessErr *PaymentSessionError
	require.ErrorAs(t, err, &sessErr)
	assert.NotEmpty(t, sessErr.OrderID)
	// The order row is committed even though the session failed.
	assert.Equal(t, 1, f.store.creates)

	// A retry with the same key replays the committed order and retries only
	// the session.
	f.gateway.createErr = nil
	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, sessErr.OrderID, res.Order.ID)
	assert.Equal(t, 1, f.store.creates)
}

// --- UpdateStatus ---

func TestUpdateStatus_AdminAnyTenant(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), res.Order.ID, StatusConfirmed, auth.Actor{Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
}

func TestUpdateStatus_ManagerOwnTenantOnly(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), res.Order.ID, StatusPreparing,
		auth.Actor{Role: auth.RoleManager, TenantID: "other-tenant"})

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)

	updated, err := f.svc.UpdateStatus(context.Background(), res.Order.ID, StatusPreparing,
		auth.Actor{Role: auth.RoleManager, TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, updated.Status)
}

func TestUpdateStatus_CustomerForbidden(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), res.Order.ID, StatusDelivered, auth.Actor{Role: "customer"})

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}

func TestUpdateStatus_UnknownValue(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateStatus(context.Background(), "any", Status("returned"), auth.Actor{Role: auth.RoleAdmin})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

// --- CompletePayment ---

func TestCompletePayment_PaidExactlyOnce(t *testing.T) {
	f := newFixture()
	req := cashRequest()
	req.PaymentMode = PaymentModeCard
	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	f.gateway.verified = &payment.VerifiedSession{
		ID:            "sess_1",
		PaymentStatus: payment.SessionPaid,
		OrderID:       res.Order.ID,
	}

	updated, err := f.svc.CompletePayment(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, updated.PaymentStatus)

	// Duplicate webhook delivery: same overwrite, same outcome.
	again, err := f.svc.CompletePayment(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, again.PaymentStatus)
}

func TestCompletePayment_UnpaidMapsToFailed(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(context.Background(), cashRequest())
	require.NoError(t, err)

	f.gateway.verified = &payment.VerifiedSession{
		ID:            "sess_2",
		PaymentStatus: payment.SessionUnpaid,
		OrderID:       res.Order.ID,
	}

	updated, err := f.svc.CompletePayment(context.Background(), "sess_2")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, updated.PaymentStatus)
}
