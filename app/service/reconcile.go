package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

const updateBuffer = 8

// OrderUpdate is published on every transition of an order.
type OrderUpdate struct {
	OrderID       string        `json:"order_id"`
	PaymentID     string        `json:"payment_id,omitempty"`
	OrderStatus   string        `json:"order_status"`
	PaymentStatus string        `json:"payment_status,omitempty"`
	State         CheckoutState `json:"state"`
	Event         string        `json:"event"`
	At            time.Time     `json:"at"`
}

// Broker fans order updates out to the subscribers of that order id.
// Publishing never blocks; a slow subscriber misses updates.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan OrderUpdate
	nextID uint64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]chan OrderUpdate)}
}

func (b *Broker) Subscribe(orderID string) (<-chan OrderUpdate, func()) {
	ch := make(chan OrderUpdate, updateBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[orderID] == nil {
		b.subs[orderID] = make(map[uint64]chan OrderUpdate)
	}
	b.subs[orderID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[orderID], id)
			if len(b.subs[orderID]) == 0 {
				delete(b.subs, orderID)
			}
			close(ch)
		})
	}
}

func (b *Broker) Publish(update OrderUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[update.OrderID] {
		select {
		case ch <- update:
		default:
		}
	}
}

func (b *Broker) subscriberCount(orderID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[orderID])
}

// SubscriptionManager holds at most one live subscription. Opening a new
// order id closes the previous one first.
type SubscriptionManager struct {
	broker *Broker

	mu      sync.Mutex
	orderID string
	cancel  func()
}

func NewSubscriptionManager(broker *Broker) *SubscriptionManager {
	return &SubscriptionManager{broker: broker}
}

func (m *SubscriptionManager) Open(orderID string) <-chan OrderUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	updates, cancel := m.broker.Subscribe(orderID)
	m.orderID = orderID
	m.cancel = cancel
	return updates
}

func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = nil
	m.orderID = ""
}

func (m *SubscriptionManager) OrderID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderID
}

// PollHandle controls a running poller.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartPoller calls check every interval until it returns true, ctx is done
// or Stop is called.
func StartPoller(ctx context.Context, interval time.Duration, check func(ctx context.Context) bool) *PollHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if check(ctx) {
					return
				}
			}
		}
	}()
	return h
}

// Stop is idempotent and does not wait; use Done for that.
func (h *PollHandle) Stop() {
	h.once.Do(h.cancel)
}

func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// ConfirmPayment records that money was received. The status-guarded
// payment update picks one winner; only the winner completes the order.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, order *entity.Order, payment *entity.Payment, source string) (*entity.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment")
	defer span.End()

	now := s.now()
	won, err := s.payments.MarkPaid(ctx, payment.ID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return order, nil
		}
		*order = *current
		return order, nil
	}

	old := payment.Status
	payment.Status = entity.PaymentStatusPaid
	payment.PaidAt = &now
	payment.UpdatedAt = now
	s.recordEvent(ctx, order.ID, &payment.ID, "payment_confirmed", &old, payment.Status, &source)
	if old == entity.PaymentStatusCancelled {
		s.cancelNewerCharge(ctx, order, payment)
	}

	return s.finishOrder(ctx, order, payment, source)
}

// cancelNewerCharge closes the charge that replaced a payment which was paid
// after all, so it is no longer polled or reconciled.
func (s *CheckoutService) cancelNewerCharge(ctx context.Context, order *entity.Order, paid *entity.Payment) {
	latest, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Load newer charge failed")
		return
	}
	if latest == nil || latest.ID == paid.ID || latest.Status != entity.PaymentStatusPending {
		return
	}
	changed, err := s.payments.TransitionStatus(ctx, latest.ID, entity.PaymentStatusPending, entity.PaymentStatusCancelled, s.now())
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", latest.ID).Warn("Cancel newer charge failed")
		return
	}
	if changed {
		old := entity.PaymentStatusPending
		reason := "paid_by_" + paid.ID
		s.recordEvent(ctx, order.ID, &latest.ID, "payment_superseded", &old, entity.PaymentStatusCancelled, &reason)
	}
}

// finishOrder runs the atomic completion for a paid order.
func (s *CheckoutService) finishOrder(ctx context.Context, order *entity.Order, payment *entity.Payment, source string) (*entity.Order, error) {
	completion, err := s.atomic.CompleteOrder(ctx, order.ID, order.UserID, order.ProductType, order.Quantity)
	if err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	if !completion.Success {
		detail := truncate(completion.Error, maxErrorLength)
		s.recordEvent(ctx, order.ID, &payment.ID, "completion_failed", nil, order.Status, &detail)
		s.logger.WithField("order_id", order.ID).WithField("source", source).Error("Order completion refused: " + completion.Error)
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, completion.Error)
	}

	if completion.AlreadyCompleted {
		order.Status = entity.OrderStatusCompleted
		return order, nil
	}

	old := order.Status
	order.Status = entity.OrderStatusCompleted
	order.UpdatedAt = s.now()
	completionsTotal.WithLabelValues(source).Inc()
	s.recordEvent(ctx, order.ID, &payment.ID, "order_completed", &old, order.Status, &source)
	s.publish(order, payment, "order_completed")
	return order, nil
}

// applyChargeStatus moves local state to match a gateway status. Money
// received for a superseded charge of a still pending order completes it.
func (s *CheckoutService) applyChargeStatus(ctx context.Context, order *entity.Order, payment *entity.Payment, status, source string) error {
	if order.Status != entity.OrderStatusPending {
		if status == provider.ChargeStatusPaid && payment.Status != entity.PaymentStatusPaid {
			s.logger.WithField("order_id", order.ID).WithField("payment_id", payment.ID).
				Warn("Payment received for a closed checkout")
		}
		return nil
	}

	if status == provider.ChargeStatusPaid {
		switch payment.Status {
		case entity.PaymentStatusPending, entity.PaymentStatusCancelled:
			_, err := s.ConfirmPayment(ctx, order, payment, source)
			return err
		case entity.PaymentStatusPaid:
			_, err := s.finishOrder(ctx, order, payment, source)
			return err
		}
		return nil
	}
	if payment.Status != entity.PaymentStatusPending {
		return nil
	}

	switch status {
	case provider.ChargeStatusFailed, provider.ChargeStatusCancelled:
		s.failPayment(ctx, order, payment, "payment_"+status, "gateway reported "+status)
	case provider.ChargeStatusExpired:
		if payment.Method == entity.PaymentMethodPix {
			_, err := s.expirePix(ctx, order, payment, true)
			return err
		}
		return s.expireOrder(ctx, order, "gateway_expired")
	}
	return nil
}

// pollOnce checks the gateway once and returns the resulting update.
func (s *CheckoutService) pollOnce(ctx context.Context, orderID string) (*OrderUpdate, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == entity.OrderStatusPending && payment != nil && payment.Status == entity.PaymentStatusPending {
		if payment.HasTransaction() && payment.Gateway != nil {
			gateway, err := s.providers.Get(*payment.Gateway)
			if err != nil {
				return nil, err
			}
			status, err := gateway.GetChargeStatus(ctx, *payment.GatewayTransactionID)
			if err != nil {
				return nil, err
			}
			if err := s.applyChargeStatus(ctx, order, payment, status, SourcePoll); err != nil {
				return nil, err
			}
		}
		if payment.Status == entity.PaymentStatusPending {
			if _, err := s.expirePix(ctx, order, payment, false); err != nil {
				return nil, err
			}
		}
	}

	update := s.snapshot(order, payment, "poll", s.now())
	return &update, nil
}

// Watch streams updates for one order until a terminal outcome, which is
// delivered exactly once as the final emit and returned.
func (s *CheckoutService) Watch(ctx context.Context, req OrderInput, emit func(OrderUpdate)) (*OrderUpdate, error) {
	order, err := s.loadOwnedOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	subscription := NewSubscriptionManager(s.broker)
	updates := subscription.Open(order.ID)
	defer subscription.Close()

	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	initial := s.snapshot(order, payment, "snapshot", s.now())
	if initial.State.Terminal() {
		emit(initial)
		return &initial, nil
	}
	emit(initial)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := make(chan OrderUpdate, 1)
	var once sync.Once
	finish := func(u OrderUpdate) {
		once.Do(func() { terminal <- u })
	}

	var poller *PollHandle
	startPoller := func() {
		if poller != nil {
			return
		}
		poller = StartPoller(ctx, s.cfg.PollInterval, func(ctx context.Context) bool {
			u, err := s.pollOnce(ctx, order.ID)
			if err != nil {
				s.logger.WithError(err).WithField("order_id", order.ID).Debug("Poll failed")
				return false
			}
			if u.State.Terminal() {
				finish(*u)
				return true
			}
			return false
		})
	}
	defer func() {
		if poller != nil {
			poller.Stop()
		}
	}()

	if payment.HasTransaction() {
		startPoller()
	}

	// The countdown follows the latest payment. A timer armed for a
	// superseded charge re-reads the order before it reports anything.
	var countdown *Countdown
	armCountdown := func(p *entity.Payment) {
		if countdown != nil {
			countdown.Stop()
			countdown = nil
		}
		if p == nil || p.Method != entity.PaymentMethodPix || p.Status != entity.PaymentStatusPending {
			return
		}
		armedID := p.ID
		countdown = StartCountdown(PixDeadline(p, s.cfg.PixLifetime), s.now, s.countdownTick, nil, func() {
			u, err := s.expireLatestPix(ctx, order.ID, armedID)
			if err != nil {
				s.logger.WithError(err).WithField("order_id", order.ID).Warn("PIX expiry failed")
				return
			}
			if u != nil && u.State.Terminal() {
				finish(*u)
			}
		})
	}
	defer func() {
		if countdown != nil {
			countdown.Stop()
		}
	}()
	armCountdown(payment)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case u := <-terminal:
			emit(u)
			return &u, nil
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.State.Terminal() {
				if u.OrderStatus != entity.OrderStatusPending {
					finish(u)
					continue
				}
				current, err := s.currentSnapshot(ctx, order.ID, u.Event)
				if err != nil {
					s.logger.WithError(err).WithField("order_id", order.ID).Debug("Reload after update failed")
					continue
				}
				if current.State.Terminal() {
					finish(*current)
				}
				continue
			}
			emit(u)
			if u.Event == "charge_generated" || u.Event == "charge_in_review" {
				latest, err := s.payments.FindLatestByOrderID(ctx, order.ID)
				if err != nil {
					s.logger.WithError(err).WithField("order_id", order.ID).Debug("Reload payment failed")
				} else {
					armCountdown(latest)
				}
				startPoller()
			}
		}
	}
}

// expireLatestPix runs the PIX deadline for the payment a countdown was
// armed with. It only touches that payment while it is still the latest and
// returns the state derived from freshly loaded rows.
func (s *CheckoutService) expireLatestPix(ctx context.Context, orderID, paymentID string) (*OrderUpdate, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.ID != paymentID {
		return nil, nil
	}
	if order.Status == entity.OrderStatusPending {
		if _, err := s.expirePix(ctx, order, payment, false); err != nil {
			return nil, err
		}
	}
	u := s.snapshot(order, payment, "pix_expired", s.now())
	return &u, nil
}

// currentSnapshot re-derives the state of an order from storage.
func (s *CheckoutService) currentSnapshot(ctx context.Context, orderID, event string) (*OrderUpdate, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	u := s.snapshot(order, payment, event, s.now())
	return &u, nil
}

func (s *CheckoutService) snapshot(order *entity.Order, payment *entity.Payment, event string, now time.Time) OrderUpdate {
	update := OrderUpdate{
		OrderID:     order.ID,
		OrderStatus: order.Status,
		State:       DeriveState(order, payment, now, s.cfg.PixLifetime),
		Event:       event,
		At:          now,
	}
	if payment != nil {
		update.PaymentID = payment.ID
		update.PaymentStatus = payment.Status
	}
	return update
}

func (s *CheckoutService) publish(order *entity.Order, payment *entity.Payment, event string) {
	s.broker.Publish(s.snapshot(order, payment, event, s.now()))
}
