package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBatchSize = int32(100)
	maxErrorLength   = 1024
)

// Confirmation sources.
const (
	SourceFree      = "free"
	SourceCard      = "card"
	SourceWebhook   = "webhook"
	SourcePoll      = "poll"
	SourceReconcile = "reconcile"
)

type PaymentDetailsInput interface {
	GetPaymentMethod() string
	GetInstallments() int32
	GetRemoteIp() string
	GetCustomer() provider.Customer
	GetCard() provider.Card
}

type StartCheckoutInput interface {
	PurchaseInput
	PaymentDetailsInput
}

type OrderInput interface {
	GetUserId() string
	GetOrderId() string
}

type ChargeInput interface {
	OrderInput
	PaymentDetailsInput
}

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error)
	SetPaymentMethod(ctx context.Context, id, method string, now time.Time) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindLatestPending(ctx context.Context, userID, productType string, since time.Time) (*entity.Order, error)
	CountPendingSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error)
	ListHoldingReservations(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error)
	ClearPixArtifact(ctx context.Context, id string, now time.Time) (bool, error)
	FindLatestByOrderID(ctx context.Context, orderID string) (*entity.Payment, error)
	FindByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*entity.Payment, error)
	ListPendingWithTransaction(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
	ListPaidWithPendingOrder(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
}

type orderEventRepository interface {
	Create(ctx context.Context, event *entity.OrderEvent) error
}

type gatewayAttemptRepository interface {
	Create(ctx context.Context, attempt *entity.GatewayAttempt) error
}

type gatewayCallbackRepository interface {
	Create(ctx context.Context, callback *entity.GatewayCallback) error
	HasProcessed(ctx context.Context, gateway, transactionID, eventType string) (bool, error)
}

// atomicStore runs the transactional reservation and completion routines.
type atomicStore interface {
	ReserveSessions(ctx context.Context, sessionType string, quantity int32, orderID string) (*entity.ReservationResult, error)
	ReleaseReservation(ctx context.Context, orderID string) (int32, error)
	CompleteOrder(ctx context.Context, orderID, userID, productType string, quantity int32) (*entity.CompletionResult, error)
}

type inventoryStore interface {
	ResyncInventory(ctx context.Context, sessionType string) (*entity.InventorySync, error)
}

type subscriptionExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int32) (int64, error)
}

type CheckoutDeps struct {
	Orders        orderRepository
	Payments      paymentRepository
	Events        orderEventRepository
	Attempts      gatewayAttemptRepository
	Callbacks     gatewayCallbackRepository
	Atomic        atomicStore
	Inventory     inventoryStore
	Subscriptions subscriptionExpirer
	Resolver      *ProductResolver
	Providers     *provider.Registry
	Settings      settingsSource
	Broker        *Broker
	Alerter       GatewayAlerter
	Config        config.CheckoutConfig
}

type CheckoutService struct {
	orders        orderRepository
	payments      paymentRepository
	events        orderEventRepository
	attempts      gatewayAttemptRepository
	callbacks     gatewayCallbackRepository
	atomic        atomicStore
	inventory     inventoryStore
	subscriptions subscriptionExpirer
	resolver      *ProductResolver
	providers     *provider.Registry
	settings      settingsSource
	broker        *Broker
	cfg           config.CheckoutConfig

	guard         *inFlightGuard
	alerter       GatewayAlerter
	now           func() time.Time
	countdownTick time.Duration
	logger        logrus.FieldLogger
	tracer        trace.Tracer
}

func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	cfg := deps.Config
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = 30 * time.Minute
	}
	if cfg.MaxPendingOrders <= 0 {
		cfg.MaxPendingOrders = 3
	}
	if cfg.PixLifetime <= 0 {
		cfg.PixLifetime = 15 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BoletoDueDays <= 0 {
		cfg.BoletoDueDays = 3
	}

	settings := deps.Settings
	if settings == nil {
		settings = staticSettings(DefaultSettings())
	}
	broker := deps.Broker
	if broker == nil {
		broker = NewBroker()
	}
	logger := factory.NewModuleLogger("checkout-service")
	alerter := deps.Alerter
	if alerter == nil {
		alerter = logAlerter{logger: logger}
	}

	return &CheckoutService{
		orders:        deps.Orders,
		payments:      deps.Payments,
		events:        deps.Events,
		attempts:      deps.Attempts,
		callbacks:     deps.Callbacks,
		atomic:        deps.Atomic,
		inventory:     deps.Inventory,
		subscriptions: deps.Subscriptions,
		resolver:      deps.Resolver,
		providers:     deps.Providers,
		settings:      settings,
		broker:        broker,
		cfg:           cfg,
		guard:         newInFlightGuard(),
		alerter:       alerter,
		now:           func() time.Time { return time.Now().UTC() },
		countdownTick: time.Second,
		logger:        logger,
		tracer:        otel.Tracer("checkout-service"),
	}
}

type staticSettings Settings

func (s staticSettings) Snapshot() Settings { return Settings(s) }

// CheckoutResult is the buyer's view of one order.
type CheckoutResult struct {
	Order        *entity.Order
	Payment      *entity.Payment
	State        CheckoutState
	PixRemaining time.Duration
	InReview     bool
}

type ResumeKind string

const (
	ResumedWithPayment    ResumeKind = "resumed_with_payment"
	ResumedWithoutPayment ResumeKind = "resumed_without_payment"
	ResumeNone            ResumeKind = "none"
)

type ResumeResult struct {
	Kind ResumeKind
	CheckoutResult
}

func (s *CheckoutService) ResolveProduct(ctx context.Context, req PurchaseInput) (*ResolvedProduct, error) {
	purchase, err := PurchaseFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, strings.TrimSpace(req.GetUserId()), purchase)
}

// ResumeOrCreate looks up a recent pending order for the same purchase. A
// ResumeNone result means the caller should start a new checkout.
func (s *CheckoutService) ResumeOrCreate(ctx context.Context, req PurchaseInput) (*ResumeResult, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	purchase, err := PurchaseFromRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order, err := s.orders.FindLatestPending(ctx, userID, purchase.ProductType(), now.Add(-s.cfg.PendingWindow))
	if err != nil {
		return nil, err
	}
	if order == nil || !sameProduct(order, purchase) {
		return &ResumeResult{Kind: ResumeNone, CheckoutResult: CheckoutResult{State: StateIdle}}, nil
	}

	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	result := &ResumeResult{Kind: ResumedWithoutPayment, CheckoutResult: *s.result(order, payment, now)}
	if payment != nil && payment.Status == entity.PaymentStatusPending && s.artifactUsable(payment, now) {
		result.Kind = ResumedWithPayment
	}
	return result, nil
}

func sameProduct(order *entity.Order, purchase Purchase) bool {
	switch purchase.Kind {
	case PurchaseKindSession:
		return order.ProductType == purchase.Session.Type && order.Quantity == purchase.Session.Quantity
	case PurchaseKindPlan:
		return order.PlanIDSnapshot != nil && *order.PlanIDSnapshot == purchase.Plan.PlanID
	}
	return false
}

// StartCheckout creates the order, reserves goods and issues the first charge.
func (s *CheckoutService) StartCheckout(ctx context.Context, req StartCheckoutInput) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.StartCheckout")
	defer span.End()

	result, err := s.startCheckout(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.String("checkout.state", string(result.State)),
	)
	return result, nil
}

func (s *CheckoutService) startCheckout(ctx context.Context, req StartCheckoutInput) (*CheckoutResult, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	purchase, err := PurchaseFromRequest(req)
	if err != nil {
		return nil, err
	}
	method := normalizeMethod(req.GetPaymentMethod())

	if !s.settings.Snapshot().CheckoutAvailable() {
		return nil, ErrCheckoutUnavailable
	}

	release, ok := s.guard.Acquire(userID)
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer release()

	now := s.now()
	pending, err := s.orders.CountPendingSince(ctx, userID, now.Add(-s.cfg.PendingWindow))
	if err != nil {
		return nil, err
	}
	if pending >= s.cfg.MaxPendingOrders {
		return nil, ErrPendingOrderLimit
	}

	product, err := s.resolver.Resolve(ctx, userID, purchase)
	if err != nil {
		return nil, err
	}
	if !product.Free() && !isChargeMethod(method) {
		return nil, ErrPaymentMethodUnsupported
	}

	order := newOrder(userID, product, now)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	ordersCreatedTotal.WithLabelValues(order.ProductType).Inc()
	s.recordEvent(ctx, order.ID, nil, "order_created", nil, order.Status, nil)

	if order.IsSessionPurchase() {
		if err := s.reserve(ctx, order); err != nil {
			return nil, err
		}
	}

	if product.Free() {
		return s.completeFree(ctx, order)
	}

	payment := newPayment(order, method, now)
	if err := s.payments.Create(ctx, payment); err != nil {
		s.releaseReservation(ctx, order)
		s.abandonOrder(ctx, order, "payment_insert_failed")
		return nil, err
	}
	if err := s.orders.SetPaymentMethod(ctx, order.ID, method, now); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Set payment method failed")
	}
	order.PaymentMethod = &method

	return s.dispatchCharge(ctx, order, payment, req)
}

// GenerateCharge issues a new charge for a pending order, keeping its
// reservation. A still usable charge of the same method is returned as is.
func (s *CheckoutService) GenerateCharge(ctx context.Context, req ChargeInput) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.GenerateCharge")
	defer span.End()

	order, err := s.loadOwnedOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	if order.Status != entity.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidStatus, order.Status)
	}
	method := normalizeMethod(req.GetPaymentMethod())
	if !isChargeMethod(method) {
		return nil, ErrPaymentMethodUnsupported
	}
	if !s.settings.Snapshot().CheckoutAvailable() {
		return nil, ErrCheckoutUnavailable
	}

	release, ok := s.guard.Acquire(order.UserID)
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer release()

	now := s.now()
	current, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		switch current.Status {
		case entity.PaymentStatusPaid:
			return nil, fmt.Errorf("%w: order already paid", ErrInvalidStatus)
		case entity.PaymentStatusPending:
			if current.Method == method && s.artifactUsable(current, now) {
				return s.result(order, current, now), nil
			}
			if _, err := s.payments.TransitionStatus(ctx, current.ID, entity.PaymentStatusPending, entity.PaymentStatusCancelled, now); err != nil {
				return nil, err
			}
			old := entity.PaymentStatusPending
			s.recordEvent(ctx, order.ID, &current.ID, "payment_superseded", &old, entity.PaymentStatusCancelled, nil)
		}
	}

	payment := newPayment(order, method, now)
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.orders.SetPaymentMethod(ctx, order.ID, method, now); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Set payment method failed")
	}
	order.PaymentMethod = &method

	return s.dispatchCharge(ctx, order, payment, req)
}

func (s *CheckoutService) GetCheckout(ctx context.Context, req OrderInput) (*CheckoutResult, error) {
	order, err := s.loadOwnedOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return s.result(order, payment, s.now()), nil
}

func (s *CheckoutService) reserve(ctx context.Context, order *entity.Order) error {
	reservation, err := s.atomic.ReserveSessions(ctx, order.ProductType, order.Quantity, order.ID)
	if err != nil {
		reservationsTotal.WithLabelValues("error").Inc()
		s.abandonOrder(ctx, order, "reservation_failed")
		return fmt.Errorf("reserve sessions: %w", err)
	}
	if !reservation.Success {
		reservationsTotal.WithLabelValues("insufficient").Inc()
		s.abandonOrder(ctx, order, "insufficient_stock")
		return &InsufficientStockError{Requested: order.Quantity, Available: reservation.AvailableCount}
	}

	reservationsTotal.WithLabelValues("reserved").Inc()
	detail := fmt.Sprintf("reserved=%d", reservation.ReservedCount)
	s.recordEvent(ctx, order.ID, nil, "sessions_reserved", nil, order.Status, &detail)
	return nil
}

func (s *CheckoutService) completeFree(ctx context.Context, order *entity.Order) (*CheckoutResult, error) {
	now := s.now()
	payment := newPayment(order, entity.PaymentMethodFree, now)
	payment.Status = entity.PaymentStatusPaid
	payment.PaidAt = &now

	if err := s.payments.Create(ctx, payment); err != nil {
		s.releaseReservation(ctx, order)
		s.abandonOrder(ctx, order, "payment_insert_failed")
		return nil, err
	}
	order.PaymentMethod = &payment.Method

	if _, err := s.finishOrder(ctx, order, payment, SourceFree); err != nil {
		return nil, err
	}
	return s.result(order, payment, now), nil
}

func (s *CheckoutService) dispatchCharge(ctx context.Context, order *entity.Order, payment *entity.Payment, details PaymentDetailsInput) (*CheckoutResult, error) {
	if !withinTolerance(payment.AmountCents, order.AmountCents, s.tolerance()) {
		return nil, ErrAmountMismatch
	}

	switch payment.Method {
	case entity.PaymentMethodPix:
		return s.chargePix(ctx, order, payment, details)
	case entity.PaymentMethodBoleto:
		return s.chargeBoleto(ctx, order, payment, details)
	case entity.PaymentMethodCreditCard:
		return s.chargeCard(ctx, order, payment, details)
	default:
		return nil, ErrPaymentMethodUnsupported
	}
}

// chargePix walks the gateway chain until one issues the code.
func (s *CheckoutService) chargePix(ctx context.Context, order *entity.Order, payment *entity.Payment, details PaymentDetailsInput) (*CheckoutResult, error) {
	chain := s.providers.Chain()
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no pix gateway configured", ErrGatewayUnavailable)
	}

	input := &provider.PixInput{
		OrderID:     order.ID,
		AmountCents: payment.AmountCents,
		Description: order.ProductName,
		Customer:    details.GetCustomer(),
	}

	failures := make([]entity.GatewayFailure, 0, len(chain))
	for i, gateway := range chain {
		spanCtx, span := s.tracer.Start(ctx, "gateway.CreatePix", trace.WithAttributes(attribute.String("gateway", gateway.Code())))
		started := time.Now()
		out, err := gateway.CreatePix(spanCtx, input)
		s.recordAttempt(ctx, gateway.Code(), order.ID, payment.Method, int32(i+1), started, err)
		if err != nil {
			span.RecordError(err)
			span.End()
			failures = append(failures, entity.GatewayFailure{
				Gateway:   gateway.Code(),
				Error:     truncate(err.Error(), maxErrorLength),
				LatencyMS: time.Since(started).Milliseconds(),
			})
			continue
		}
		span.End()

		code := gateway.Code()
		payment.Gateway = &code
		payment.GatewayTransactionID = nonEmpty(out.TransactionID)
		payment.PixCode = nonEmpty(out.PixCode)
		payment.QRCodeBase64 = nonEmpty(out.QRCodeBase64)
		payment.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, payment); err != nil {
			return nil, err
		}

		s.recordEvent(ctx, order.ID, &payment.ID, "charge_generated", nil, order.Status, &code)
		s.publish(order, payment, "charge_generated")
		return s.result(order, payment, s.now()), nil
	}

	s.alertGatewayFailure(ctx, order, payment, failures)
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, f.Gateway+": "+f.Error)
	}
	return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, strings.Join(messages, "; "))
}

func (s *CheckoutService) chargeBoleto(ctx context.Context, order *entity.Order, payment *entity.Payment, details PaymentDetailsInput) (*CheckoutResult, error) {
	gateway, creator, err := s.providers.BoletoCreator()
	if err != nil {
		return nil, ErrPaymentMethodUnsupported
	}

	started := time.Now()
	out, err := creator.CreateBoleto(ctx, &provider.BoletoInput{
		OrderID:     order.ID,
		AmountCents: payment.AmountCents,
		Description: order.ProductName,
		Customer:    details.GetCustomer(),
		DueDays:     s.cfg.BoletoDueDays,
	})
	s.recordAttempt(ctx, gateway.Code(), order.ID, payment.Method, 1, started, err)
	if err != nil {
		if errors.Is(err, provider.ErrDocumentRequired) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	code := gateway.Code()
	payment.Gateway = &code
	payment.GatewayTransactionID = nonEmpty(out.TransactionID)
	payment.BoletoCode = nonEmpty(out.BoletoCode)
	payment.BoletoURL = nonEmpty(out.BoletoURL)
	payment.BoletoDueDate = nonEmpty(out.DueDate)
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, order.ID, &payment.ID, "charge_generated", nil, order.Status, &code)
	s.publish(order, payment, "charge_generated")
	return s.result(order, payment, s.now()), nil
}

func (s *CheckoutService) chargeCard(ctx context.Context, order *entity.Order, payment *entity.Payment, details PaymentDetailsInput) (*CheckoutResult, error) {
	gateway, charger, err := s.providers.CardCharger()
	if err != nil {
		return nil, ErrPaymentMethodUnsupported
	}

	started := time.Now()
	out, err := charger.ChargeCard(ctx, &provider.CardInput{
		OrderID:      order.ID,
		AmountCents:  payment.AmountCents,
		Description:  order.ProductName,
		Customer:     details.GetCustomer(),
		Card:         details.GetCard(),
		Installments: int(details.GetInstallments()),
		RemoteIP:     strings.TrimSpace(details.GetRemoteIp()),
	})
	s.recordAttempt(ctx, gateway.Code(), order.ID, payment.Method, 1, started, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	code := gateway.Code()
	payment.Gateway = &code
	payment.GatewayTransactionID = nonEmpty(out.TransactionID)
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, err
	}

	switch out.Status {
	case provider.ChargeStatusPaid:
		if _, err := s.ConfirmPayment(ctx, order, payment, SourceCard); err != nil {
			return nil, err
		}
		return s.result(order, payment, s.now()), nil
	case provider.ChargeStatusFailed:
		s.failPayment(ctx, order, payment, "charge_declined", out.DeclineReason)
		if out.DeclineReason == "" {
			return nil, ErrChargeDeclined
		}
		return nil, fmt.Errorf("%w: %s", ErrChargeDeclined, out.DeclineReason)
	default:
		s.recordEvent(ctx, order.ID, &payment.ID, "charge_in_review", nil, order.Status, &code)
		s.publish(order, payment, "charge_in_review")
		return s.result(order, payment, s.now()), nil
	}
}

// abandonOrder cancels an order that never reached a charge.
func (s *CheckoutService) abandonOrder(ctx context.Context, order *entity.Order, reason string) {
	now := s.now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID, entity.OrderStatusPending, entity.OrderStatusCancelled, now)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Abandon order failed")
		return
	}
	if !changed {
		return
	}

	old := order.Status
	order.Status = entity.OrderStatusCancelled
	order.UpdatedAt = now
	cancellationsTotal.WithLabelValues(reason).Inc()
	s.recordEvent(ctx, order.ID, nil, "order_abandoned", &old, order.Status, &reason)
	s.publish(order, nil, "order_cancelled")
}

func (s *CheckoutService) releaseReservation(ctx context.Context, order *entity.Order) int32 {
	if !order.IsSessionPurchase() {
		return 0
	}
	released, err := s.atomic.ReleaseReservation(ctx, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Release reservation failed")
		return 0
	}
	if released > 0 {
		detail := fmt.Sprintf("released=%d", released)
		s.recordEvent(ctx, order.ID, nil, "reservation_released", nil, order.Status, &detail)
	}
	return released
}

func (s *CheckoutService) failPayment(ctx context.Context, order *entity.Order, payment *entity.Payment, eventType, reason string) {
	now := s.now()
	changed, err := s.payments.TransitionStatus(ctx, payment.ID, entity.PaymentStatusPending, entity.PaymentStatusFailed, now)
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Fail payment update failed")
		return
	}
	if !changed {
		return
	}

	old := payment.Status
	payment.Status = entity.PaymentStatusFailed
	payment.UpdatedAt = now
	var detail *string
	if reason != "" {
		trimmed := truncate(reason, maxErrorLength)
		detail = &trimmed
	}
	s.recordEvent(ctx, order.ID, &payment.ID, eventType, &old, payment.Status, detail)
	s.publish(order, payment, eventType)
}

func (s *CheckoutService) loadOwnedOrder(ctx context.Context, req OrderInput) (*entity.Order, error) {
	userID := strings.TrimSpace(req.GetUserId())
	orderID := strings.TrimSpace(req.GetOrderId())
	if userID == "" || orderID == "" {
		return nil, ErrInvalidRequest
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *CheckoutService) result(order *entity.Order, payment *entity.Payment, now time.Time) *CheckoutResult {
	state := DeriveState(order, payment, now, s.cfg.PixLifetime)
	result := &CheckoutResult{Order: order, Payment: payment, State: state}
	if payment != nil && payment.Method == entity.PaymentMethodPix && payment.Status == entity.PaymentStatusPending {
		result.PixRemaining = PixRemaining(payment, now, s.cfg.PixLifetime)
	}
	result.InReview = state == StateAwaitingConfirmation &&
		payment != nil &&
		payment.Method == entity.PaymentMethodCreditCard &&
		payment.Status == entity.PaymentStatusPending
	return result
}

// artifactUsable reports whether a pending payment can still be paid as is.
func (s *CheckoutService) artifactUsable(payment *entity.Payment, now time.Time) bool {
	switch payment.Method {
	case entity.PaymentMethodPix:
		return payment.HasPixArtifact() && PixRemaining(payment, now, s.cfg.PixLifetime) > 0
	case entity.PaymentMethodBoleto:
		return payment.BoletoCode != nil && *payment.BoletoCode != ""
	case entity.PaymentMethodCreditCard:
		return payment.HasTransaction()
	}
	return false
}

func (s *CheckoutService) recordEvent(ctx context.Context, orderID string, paymentID *string, eventType string, oldStatus *string, newStatus string, detail *string) {
	if s.events == nil {
		return
	}
	_ = s.events.Create(ctx, &entity.OrderEvent{
		OrderID:   orderID,
		PaymentID: paymentID,
		EventType: eventType,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Detail:    detail,
		CreatedAt: s.now(),
	})
}

func (s *CheckoutService) recordAttempt(ctx context.Context, gateway, orderID, method string, attempt int32, started time.Time, callErr error) {
	latency := time.Since(started)
	gatewayLatency.WithLabelValues(gateway, method).Observe(latency.Seconds())

	outcome := "success"
	var errMsg *string
	if callErr != nil {
		outcome = "failed"
		trimmed := truncate(callErr.Error(), maxErrorLength)
		errMsg = &trimmed
	}
	chargesTotal.WithLabelValues(method, gateway, outcome).Inc()

	if s.attempts == nil {
		return
	}
	_ = s.attempts.Create(ctx, &entity.GatewayAttempt{
		Gateway:   gateway,
		OrderID:   orderID,
		Method:    method,
		Attempt:   attempt,
		Success:   callErr == nil,
		Error:     errMsg,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: s.now(),
	})
}

func (s *CheckoutService) tolerance() int64 {
	if s.cfg.PriceToleranceCents < 0 {
		return 0
	}
	return s.cfg.PriceToleranceCents
}

func (s *CheckoutService) batchSize() int32 {
	if s.cfg.JobBatchSize <= 0 {
		return defaultBatchSize
	}
	return s.cfg.JobBatchSize
}

func newOrder(userID string, product *ResolvedProduct, now time.Time) *entity.Order {
	order := &entity.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductName: product.Title,
		ProductType: product.ProductType,
		Quantity:    product.Quantity,
		AmountCents: product.PriceCents,
		Status:      entity.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if product.Plan != nil {
		planID := product.Plan.ID
		period := product.Plan.PeriodDays
		order.PlanIDSnapshot = &planID
		order.PlanPeriodDays = &period
		order.PlanFeaturesSnapshot = product.Plan.Features
		order.UpgradeFromSubscriptionID = product.UpgradeFromSubscriptionID
		if product.UpgradeCreditCents > 0 {
			credit := product.UpgradeCreditCents
			order.UpgradeCreditCents = &credit
		}
	}
	return order
}

func newPayment(order *entity.Order, method string, now time.Time) *entity.Payment {
	return &entity.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		UserID:      order.UserID,
		AmountCents: order.AmountCents,
		Method:      method,
		Status:      entity.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func normalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "card" {
		return entity.PaymentMethodCreditCard
	}
	return method
}

func isChargeMethod(method string) bool {
	switch method {
	case entity.PaymentMethodPix, entity.PaymentMethodBoleto, entity.PaymentMethodCreditCard:
		return true
	}
	return false
}

func withinTolerance(got, want, tolerance int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// truncate cuts v to at most max bytes without splitting a rune.
func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut]
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
