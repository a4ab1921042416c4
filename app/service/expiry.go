package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// PixDeadline is measured from the payment's creation, never from when the
// checkout was resumed.
func PixDeadline(payment *entity.Payment, lifetime time.Duration) time.Time {
	return payment.CreatedAt.Add(lifetime)
}

func PixRemaining(payment *entity.Payment, now time.Time, lifetime time.Duration) time.Duration {
	remaining := PixDeadline(payment, lifetime).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Countdown ticks until a deadline and fires onExpire once.
type Countdown struct {
	deadline time.Time
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func StartCountdown(deadline time.Time, now func() time.Time, tick time.Duration, onTick func(remaining time.Duration), onExpire func()) *Countdown {
	if tick <= 0 {
		tick = time.Second
	}
	c := &Countdown{
		deadline: deadline,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		if c.Remaining() <= 0 {
			onExpire()
			return
		}

		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				remaining := c.Remaining()
				if remaining <= 0 {
					onExpire()
					return
				}
				if onTick != nil {
					onTick(remaining)
				}
			}
		}
	}()
	return c
}

func (c *Countdown) Remaining() time.Duration {
	remaining := c.deadline.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// ExpirePix invalidates the PIX code of an order once its lifetime is over.
// Before the deadline it only reports the current state.
func (s *CheckoutService) ExpirePix(ctx context.Context, req OrderInput) (*CheckoutResult, error) {
	order, err := s.loadOwnedOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if payment != nil && order.Status == entity.OrderStatusPending {
		if _, err := s.expirePix(ctx, order, payment, false); err != nil {
			return nil, err
		}
	}
	return s.result(order, payment, s.now()), nil
}

// expirePix clears the PIX artifact of a pending payment. The order stays
// pending so a new code can be requested. force skips the deadline check
// for gateways that report the charge expired.
func (s *CheckoutService) expirePix(ctx context.Context, order *entity.Order, payment *entity.Payment, force bool) (bool, error) {
	if payment == nil || payment.Method != entity.PaymentMethodPix || payment.Status != entity.PaymentStatusPending {
		return false, nil
	}
	now := s.now()
	if !force && now.Before(PixDeadline(payment, s.cfg.PixLifetime)) {
		return false, nil
	}
	if !payment.HasPixArtifact() {
		return false, nil
	}

	cleared, err := s.payments.ClearPixArtifact(ctx, payment.ID, now)
	if err != nil {
		return false, err
	}
	if !cleared {
		return false, nil
	}
	payment.ClearPixArtifact()
	payment.UpdatedAt = now

	s.recordEvent(ctx, order.ID, &payment.ID, "pix_expired", nil, payment.Status, nil)
	s.publish(order, payment, "pix_expired")
	return true, nil
}

// Cancel closes a pending order on the buyer's request and undoes its
// reservation.
func (s *CheckoutService) Cancel(ctx context.Context, req OrderInput) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Cancel")
	defer span.End()

	order, err := s.loadOwnedOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case entity.OrderStatusCompleted, entity.OrderStatusPaid:
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidStatus, order.Status)
	case entity.OrderStatusCancelled, entity.OrderStatusExpired, entity.OrderStatusRefunded:
		return s.currentResult(ctx, order)
	}

	now := s.now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID, entity.OrderStatusPending, entity.OrderStatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrOrderNotFound
		}
		if current.Status == entity.OrderStatusCompleted || current.Status == entity.OrderStatusPaid {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidStatus, current.Status)
		}
		return s.currentResult(ctx, current)
	}

	order.Status = entity.OrderStatusCancelled
	order.UpdatedAt = now
	payment := s.closeOrder(ctx, order, entity.OrderStatusPending, "cancelled_by_user")
	return s.result(order, payment, now), nil
}

// expireOrder moves a stale pending order to expired.
func (s *CheckoutService) expireOrder(ctx context.Context, order *entity.Order, reason string) error {
	now := s.now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID, entity.OrderStatusPending, entity.OrderStatusExpired, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	order.Status = entity.OrderStatusExpired
	order.UpdatedAt = now
	s.closeOrder(ctx, order, entity.OrderStatusPending, reason)
	return nil
}

// closeOrder compensates an order that was just moved out of pending: the
// reservation goes back to stock and the open payment is cancelled. Release
// failures are left to the reservations job.
func (s *CheckoutService) closeOrder(ctx context.Context, order *entity.Order, oldStatus, reason string) *entity.Payment {
	s.releaseReservation(ctx, order)

	now := s.now()
	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Load payment for close failed")
	}
	if payment != nil && payment.Status == entity.PaymentStatusPending {
		changed, err := s.payments.TransitionStatus(ctx, payment.ID, entity.PaymentStatusPending, entity.PaymentStatusCancelled, now)
		if err != nil {
			s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("Cancel payment failed")
		} else if changed {
			old := payment.Status
			payment.Status = entity.PaymentStatusCancelled
			payment.UpdatedAt = now
			s.recordEvent(ctx, order.ID, &payment.ID, "payment_cancelled", &old, payment.Status, &reason)
		}
	}

	cancellationsTotal.WithLabelValues(reason).Inc()
	s.recordEvent(ctx, order.ID, nil, "order_"+order.Status, &oldStatus, order.Status, &reason)
	s.publish(order, payment, "order_"+order.Status)
	return payment
}

func (s *CheckoutService) currentResult(ctx context.Context, order *entity.Order) (*CheckoutResult, error) {
	payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return s.result(order, payment, s.now()), nil
}
