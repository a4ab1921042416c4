package service

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type heldReservation struct {
	sessionType string
	quantity    int32
}

// memStore backs every repository fake with one lock so concurrent tests
// see a consistent view.
type memStore struct {
	mu sync.Mutex

	orders   map[string]*entity.Order
	payments map[string]*entity.Payment
	seq      map[string]int
	nextSeq  int

	events    []entity.OrderEvent
	attempts  []entity.GatewayAttempt
	callbacks []entity.GatewayCallback

	stock     map[string]int32
	available map[string]int32
	reserved  map[string]heldReservation
	sold      map[string]int32

	reserveCalls  int
	releaseCalls  int
	completeCalls int

	reserveErr       error
	createPaymentErr error
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[string]*entity.Order),
		payments: make(map[string]*entity.Payment),
		seq:      make(map[string]int),
		stock:     make(map[string]int32),
		available: make(map[string]int32),
		reserved:  make(map[string]heldReservation),
		sold:      make(map[string]int32),
	}
}

func (m *memStore) order(id string) *entity.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		clone := *o
		return &clone
	}
	return nil
}

func (m *memStore) payment(id string) *entity.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		clone := *p
		return &clone
	}
	return nil
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) paymentsOf(orderID string) []*entity.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*entity.Payment, 0)
	for _, p := range m.payments {
		if p.OrderID == orderID {
			clone := *p
			items = append(items, &clone)
		}
	}
	sort.Slice(items, func(i, j int) bool { return m.seq[items[i].ID] < m.seq[items[j].ID] })
	return items
}

func (m *memStore) stockOf(sessionType string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[sessionType]
}

func (m *memStore) reservedFor(orderID string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved[orderID].quantity
}

func (m *memStore) eventCount(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

func (m *memStore) completions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

type fakeOrders struct{ *memStore }

func (f fakeOrders) Create(_ context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *order
	f.orders[order.ID] = &clone
	return nil
}

func (f fakeOrders) TransitionStatus(_ context.Context, id, from, to string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	return true, nil
}

func (f fakeOrders) SetPaymentMethod(_ context.Context, id, method string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return errors.New("order not found")
	}
	o.PaymentMethod = &method
	o.UpdatedAt = now
	return nil
}

func (f fakeOrders) FindByID(_ context.Context, id string) (*entity.Order, error) {
	return f.order(id), nil
}

func (f fakeOrders) FindLatestPending(_ context.Context, userID, productType string, since time.Time) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *entity.Order
	for _, o := range f.orders {
		if o.UserID != userID || o.ProductType != productType || o.Status != entity.OrderStatusPending || o.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (f fakeOrders) CountPendingSince(_ context.Context, userID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, o := range f.orders {
		if o.UserID == userID && o.Status == entity.OrderStatusPending && !o.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f fakeOrders) ListPendingCreatedBefore(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error) {
	return f.listOrders(limit, func(o *entity.Order) bool {
		return o.Status == entity.OrderStatusPending && o.CreatedAt.Before(cutoff)
	}), nil
}

func (f fakeOrders) ListHoldingReservations(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error) {
	return f.listOrders(limit, func(o *entity.Order) bool {
		_, held := f.reserved[o.ID]
		return held && o.CreatedAt.Before(cutoff) &&
			(o.Status == entity.OrderStatusCancelled || o.Status == entity.OrderStatusExpired)
	}), nil
}

func (f fakeOrders) listOrders(limit int32, match func(o *entity.Order) bool) []*entity.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, o := range f.orders {
		if match(o) {
			clone := *o
			items = append(items, &clone)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if int32(len(items)) > limit {
		items = items[:limit]
	}
	return items
}

type fakePayments struct{ *memStore }

func (f fakePayments) Create(_ context.Context, payment *entity.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createPaymentErr != nil {
		return f.createPaymentErr
	}
	clone := *payment
	f.payments[payment.ID] = &clone
	f.nextSeq++
	f.seq[payment.ID] = f.nextSeq
	return nil
}

func (f fakePayments) Update(_ context.Context, payment *entity.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.payments[payment.ID]
	if !ok {
		return errors.New("payment not found")
	}
	clone := *payment
	clone.CreatedAt = existing.CreatedAt
	f.payments[payment.ID] = &clone
	return nil
}

func (f fakePayments) MarkPaid(_ context.Context, id string, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || (p.Status != entity.PaymentStatusPending && p.Status != entity.PaymentStatusCancelled) {
		return false, nil
	}
	p.Status = entity.PaymentStatusPaid
	p.PaidAt = &paidAt
	p.UpdatedAt = paidAt
	return true, nil
}

func (f fakePayments) TransitionStatus(_ context.Context, id, from, to string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now
	return true, nil
}

func (f fakePayments) ClearPixArtifact(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.Status != entity.PaymentStatusPending || p.PixCode == nil {
		return false, nil
	}
	p.ClearPixArtifact()
	p.UpdatedAt = now
	return true, nil
}

func (f fakePayments) FindLatestByOrderID(_ context.Context, orderID string) (*entity.Payment, error) {
	items := f.paymentsOf(orderID)
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

func (f fakePayments) FindByGatewayTransaction(_ context.Context, gateway, transactionID string) (*entity.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Gateway != nil && *p.Gateway == gateway && p.GatewayTransactionID != nil && *p.GatewayTransactionID == transactionID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (f fakePayments) ListPendingWithTransaction(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return f.listPayments(limit, func(p *entity.Payment) bool {
		return p.Status == entity.PaymentStatusPending && p.HasTransaction() && !p.UpdatedAt.After(before)
	}), nil
}

func (f fakePayments) ListPaidWithPendingOrder(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return f.listPayments(limit, func(p *entity.Payment) bool {
		o, ok := f.orders[p.OrderID]
		return ok && o.Status == entity.OrderStatusPending &&
			p.Status == entity.PaymentStatusPaid && p.PaidAt != nil && !p.PaidAt.After(before)
	}), nil
}

func (f fakePayments) listPayments(limit int32, match func(p *entity.Payment) bool) []*entity.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]*entity.Payment, 0)
	for _, p := range f.payments {
		if match(p) {
			clone := *p
			items = append(items, &clone)
		}
	}
	sort.Slice(items, func(i, j int) bool { return f.seq[items[i].ID] < f.seq[items[j].ID] })
	if int32(len(items)) > limit {
		items = items[:limit]
	}
	return items
}

type fakeEvents struct{ *memStore }

func (f fakeEvents) Create(_ context.Context, event *entity.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

type fakeAttempts struct{ *memStore }

func (f fakeAttempts) Create(_ context.Context, attempt *entity.GatewayAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

type fakeCallbacks struct{ *memStore }

func (f fakeCallbacks) Create(_ context.Context, callback *entity.GatewayCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, *callback)
	return nil
}

func (f fakeCallbacks) HasProcessed(_ context.Context, gateway, transactionID, eventType string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.callbacks {
		if c.Gateway == gateway && c.TransactionID == transactionID && c.EventType == eventType && c.Status == entity.GatewayCallbackProcessed {
			return true, nil
		}
	}
	return false, nil
}

// fakeAtomic keeps the compare-and-decrement semantics of the database
// routines under the store lock.
type fakeAtomic struct{ *memStore }

func (f fakeAtomic) ReserveSessions(_ context.Context, sessionType string, quantity int32, orderID string) (*entity.ReservationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	if held, ok := f.reserved[orderID]; ok {
		return &entity.ReservationResult{Success: true, ReservedCount: held.quantity, AvailableCount: f.stock[sessionType]}, nil
	}
	available := f.stock[sessionType]
	if available < quantity {
		return &entity.ReservationResult{AvailableCount: available, Error: "insufficient stock"}, nil
	}
	f.stock[sessionType] = available - quantity
	f.reserved[orderID] = heldReservation{sessionType: sessionType, quantity: quantity}
	return &entity.ReservationResult{Success: true, ReservedCount: quantity, AvailableCount: available - quantity}, nil
}

func (f fakeAtomic) ReleaseReservation(_ context.Context, orderID string) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	held, ok := f.reserved[orderID]
	if !ok {
		return 0, nil
	}
	f.stock[held.sessionType] += held.quantity
	delete(f.reserved, orderID)
	return held.quantity, nil
}

func (f fakeAtomic) CompleteOrder(_ context.Context, orderID, userID, productType string, quantity int32) (*entity.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	o, ok := f.orders[orderID]
	if !ok || o.UserID != userID {
		return &entity.CompletionResult{Error: "order not found"}, nil
	}
	switch o.Status {
	case entity.OrderStatusCompleted:
		return &entity.CompletionResult{Success: true, AlreadyCompleted: true}, nil
	case entity.OrderStatusCancelled, entity.OrderStatusExpired, entity.OrderStatusRefunded:
		return &entity.CompletionResult{Error: "order is " + o.Status}, nil
	}
	if productType != entity.ProductTypeSubscription {
		if held, ok := f.reserved[orderID]; ok {
			f.sold[orderID] = held.quantity
			delete(f.reserved, orderID)
		} else {
			if f.stock[productType] < quantity {
				return &entity.CompletionResult{Error: "insufficient stock"}, nil
			}
			f.stock[productType] -= quantity
			f.sold[orderID] = quantity
		}
	}
	o.Status = entity.OrderStatusCompleted
	return &entity.CompletionResult{Success: true}, nil
}

type fakeInventory struct{ *memStore }

func (f fakeInventory) ResyncInventory(_ context.Context, sessionType string) (*entity.InventorySync, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, ok := f.stock[sessionType]
	counted := f.available[sessionType]
	f.stock[sessionType] = counted
	return &entity.InventorySync{Type: sessionType, Previous: previous, Counted: counted, Created: !ok}, nil
}

type fakeCatalog struct {
	plans     map[string]*entity.SubscriptionPlan
	combos    map[string][]*entity.SessionCombo
	inventory map[string]*entity.SessionInventory
}

func (f *fakeCatalog) FindPlanByID(_ context.Context, id string) (*entity.SubscriptionPlan, error) {
	return f.plans[id], nil
}

func (f *fakeCatalog) ListActiveCombos(_ context.Context, sessionType string) ([]*entity.SessionCombo, error) {
	return f.combos[sessionType], nil
}

func (f *fakeCatalog) FindInventory(_ context.Context, sessionType string) (*entity.SessionInventory, error) {
	return f.inventory[sessionType], nil
}

type fakeSubscriptions struct {
	active map[string]*entity.UserSubscription
	counts map[string]int

	billing   []*entity.UserSubscription
	expireErr error
}

func (f *fakeSubscriptions) ExpireDue(_ context.Context, now time.Time, limit int32) (int64, error) {
	if f.expireErr != nil {
		return 0, f.expireErr
	}
	var n int64
	for _, sub := range f.billing {
		if n >= int64(limit) {
			break
		}
		if sub.Status == entity.SubscriptionStatusActive && sub.NextBillingDate != nil && sub.NextBillingDate.Before(now) {
			sub.Status = entity.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeSubscriptions) FindActiveByUser(_ context.Context, userID string) (*entity.UserSubscription, error) {
	return f.active[userID], nil
}

func (f *fakeSubscriptions) CountActiveByUserAndPlan(_ context.Context, userID, planID string) (int, error) {
	return f.counts[userID+"/"+planID], nil
}

type fakeProvider struct {
	code string

	mu        sync.Mutex
	pixCalls  int
	cardCalls int

	createPixFn func(ctx context.Context, input *provider.PixInput) (*provider.PixOutput, error)
	boletoFn    func(ctx context.Context, input *provider.BoletoInput) (*provider.BoletoOutput, error)
	cardFn      func(ctx context.Context, input *provider.CardInput) (*provider.CardOutput, error)
	statusFn    func(ctx context.Context, transactionID string) (string, error)
	callbackFn  func(ctx context.Context, payload []byte, headers http.Header) (*provider.CallbackEvent, error)
}

func (p *fakeProvider) Code() string { return p.code }

func (p *fakeProvider) CreatePix(ctx context.Context, input *provider.PixInput) (*provider.PixOutput, error) {
	p.mu.Lock()
	p.pixCalls++
	p.mu.Unlock()
	if p.createPixFn == nil {
		return &provider.PixOutput{TransactionID: p.code + "-tx-" + input.OrderID, PixCode: "000201pix", QRCodeBase64: "qr"}, nil
	}
	return p.createPixFn(ctx, input)
}

func (p *fakeProvider) CreateBoleto(ctx context.Context, input *provider.BoletoInput) (*provider.BoletoOutput, error) {
	if p.boletoFn == nil {
		return &provider.BoletoOutput{TransactionID: p.code + "-bol-" + input.OrderID, BoletoCode: "23793.38128", BoletoURL: "https://bank/slip", DueDate: "2026-01-13"}, nil
	}
	return p.boletoFn(ctx, input)
}

func (p *fakeProvider) ChargeCard(ctx context.Context, input *provider.CardInput) (*provider.CardOutput, error) {
	p.mu.Lock()
	p.cardCalls++
	p.mu.Unlock()
	if p.cardFn == nil {
		return &provider.CardOutput{TransactionID: p.code + "-card-" + input.OrderID, Status: provider.ChargeStatusPaid}, nil
	}
	return p.cardFn(ctx, input)
}

func (p *fakeProvider) GetChargeStatus(ctx context.Context, transactionID string) (string, error) {
	if p.statusFn == nil {
		return provider.ChargeStatusPending, nil
	}
	return p.statusFn(ctx, transactionID)
}

func (p *fakeProvider) VerifyAndParseCallback(ctx context.Context, payload []byte, headers http.Header) (*provider.CallbackEvent, error) {
	if p.callbackFn == nil {
		return nil, provider.ErrInvalidCallback
	}
	return p.callbackFn(ctx, payload, headers)
}

func (p *fakeProvider) calls() (pix, card int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pixCalls, p.cardCalls
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []entity.GatewayAlert
	err    error
}

func (a *fakeAlerter) GatewayChainFailed(_ context.Context, alert entity.GatewayAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return a.err
}

func (a *fakeAlerter) sent() []entity.GatewayAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]entity.GatewayAlert(nil), a.alerts...)
}

type fakeSettings struct {
	mu       sync.Mutex
	settings Settings
}

func (f *fakeSettings) Snapshot() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// testRequest satisfies every request interface of the service.
type testRequest struct {
	userID       string
	orderID      string
	sessionType  string
	quantity     int32
	priceCents   int64
	planID       string
	method       string
	installments int32
	remoteIP     string
	customer     provider.Customer
	card         provider.Card
}

func (r testRequest) GetUserId() string              { return r.userID }
func (r testRequest) GetOrderId() string             { return r.orderID }
func (r testRequest) GetSessionType() string         { return r.sessionType }
func (r testRequest) GetQuantity() int32             { return r.quantity }
func (r testRequest) GetPriceCents() int64           { return r.priceCents }
func (r testRequest) GetPlanId() string              { return r.planID }
func (r testRequest) GetPaymentMethod() string       { return r.method }
func (r testRequest) GetInstallments() int32         { return r.installments }
func (r testRequest) GetRemoteIp() string            { return r.remoteIP }
func (r testRequest) GetCustomer() provider.Customer { return r.customer }
func (r testRequest) GetCard() provider.Card         { return r.card }

type callbackRequest struct {
	gateway string
	payload []byte
	headers http.Header
}

func (r callbackRequest) GetGateway() string      { return r.gateway }
func (r callbackRequest) GetPayload() []byte      { return r.payload }
func (r callbackRequest) GetHeaders() http.Header { return r.headers }

type harness struct {
	store    *memStore
	catalog  *fakeCatalog
	subs     *fakeSubscriptions
	gateway  *fakeProvider
	registry *provider.Registry
	settings *fakeSettings
	broker   *Broker
	alerter  *fakeAlerter
	clock    *testClock
	svc      *CheckoutService
}

var testStart = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func int32Ptr(v int32) *int32 { return &v }
func int64Ptr(v int64) *int64 { return &v }

func newHarness(t *testing.T, gateways ...*fakeProvider) *harness {
	t.Helper()

	store := newMemStore()
	store.stock[entity.ProductTypeBrazilian] = 5
	store.stock[entity.ProductTypeForeign] = 20

	catalog := &fakeCatalog{
		plans: map[string]*entity.SubscriptionPlan{
			"basic": {ID: "basic", Name: "Basic", PriceCents: 2990, PeriodDays: 30, IsActive: true},
			"pro":   {ID: "pro", Name: "Pro", PriceCents: 5990, PeriodDays: 30, IsActive: true, Features: []string{"bots"}},
			"free":  {ID: "free", Name: "Free", PriceCents: 0, PeriodDays: 0, IsActive: true},
		},
		combos: map[string][]*entity.SessionCombo{
			entity.ProductTypeBrazilian: {{ID: "combo-5", Type: entity.ProductTypeBrazilian, Quantity: 5, PriceCents: 1990, IsActive: true}},
		},
		inventory: map[string]*entity.SessionInventory{
			entity.ProductTypeBrazilian: {Type: entity.ProductTypeBrazilian, CustomQuantityEnabled: true, CustomQuantityMin: 5, CustomPricePerUnitCents: 500},
			entity.ProductTypeForeign:   {Type: entity.ProductTypeForeign, CustomQuantityEnabled: true, CustomQuantityMin: 1, CustomPricePerUnitCents: 300},
		},
	}
	subs := &fakeSubscriptions{active: map[string]*entity.UserSubscription{}, counts: map[string]int{}}

	if len(gateways) == 0 {
		gateways = []*fakeProvider{{code: "asaas"}}
	}
	registry := provider.NewRegistry()
	for i, gw := range gateways {
		registry.Register(gw, 100-i)
	}

	clock := &testClock{now: testStart}
	settings := &fakeSettings{settings: DefaultSettings()}
	broker := NewBroker()
	alerter := &fakeAlerter{}

	resolver := NewProductResolver(catalog, subs, 1)
	resolver.now = clock.Now

	svc := NewCheckoutService(CheckoutDeps{
		Orders:        fakeOrders{store},
		Payments:      fakePayments{store},
		Events:        fakeEvents{store},
		Attempts:      fakeAttempts{store},
		Callbacks:     fakeCallbacks{store},
		Atomic:        fakeAtomic{store},
		Inventory:     fakeInventory{store},
		Subscriptions: subs,
		Resolver:      resolver,
		Providers:     registry,
		Settings:      settings,
		Broker:        broker,
		Alerter:       alerter,
		Config: config.CheckoutConfig{
			PendingWindow:       30 * time.Minute,
			MaxPendingOrders:    3,
			PixLifetime:         15 * time.Minute,
			PollInterval:        10 * time.Millisecond,
			PriceToleranceCents: 1,
			BoletoDueDays:       3,
			ReconcileStaleAfter: 2 * time.Minute,
			JobBatchSize:        50,
		},
	})
	svc.now = clock.Now
	svc.countdownTick = 5 * time.Millisecond

	return &harness{
		store:    store,
		catalog:  catalog,
		subs:     subs,
		gateway:  gateways[0],
		registry: registry,
		settings: settings,
		broker:   broker,
		alerter:  alerter,
		clock:    clock,
		svc:      svc,
	}
}

func comboRequest(userID, method string) testRequest {
	return testRequest{
		userID:      userID,
		sessionType: entity.ProductTypeBrazilian,
		quantity:    5,
		priceCents:  1990,
		method:      method,
		customer:    provider.Customer{Name: "Ana", Email: "ana@example.com", CPFCNPJ: "12345678909"},
	}
}
