package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type checkoutService interface {
	ResolveProduct(ctx context.Context, req service.PurchaseInput) (*service.ResolvedProduct, error)
	ResumeOrCreate(ctx context.Context, req service.PurchaseInput) (*service.ResumeResult, error)
	StartCheckout(ctx context.Context, req service.StartCheckoutInput) (*service.CheckoutResult, error)
	GetCheckout(ctx context.Context, req service.OrderInput) (*service.CheckoutResult, error)
	GenerateCharge(ctx context.Context, req service.ChargeInput) (*service.CheckoutResult, error)
	Cancel(ctx context.Context, req service.OrderInput) (*service.CheckoutResult, error)
	ExpirePix(ctx context.Context, req service.OrderInput) (*service.CheckoutResult, error)
	Watch(ctx context.Context, req service.OrderInput, emit func(service.OrderUpdate)) (*service.OrderUpdate, error)
	HandleGatewayCallback(ctx context.Context, req service.GatewayCallbackInput) (*service.WebhookResult, error)
}

type CheckoutController struct {
	checkoutService checkoutService
	logger          logrus.FieldLogger
}

func NewCheckoutController(checkoutService checkoutService) *CheckoutController {
	return &CheckoutController{
		checkoutService: checkoutService,
		logger:          factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *CheckoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *CheckoutController) ResolveProduct(ctx echo.Context) error {
	req, err := types.NewPurchaseRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	product, err := c.checkoutService.ResolveProduct(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Resolve product failed", err)
	}

	return ctx.JSON(http.StatusOK, &types.ProductResponse{Product: mapper.ProductToProto(product)})
}

func (c *CheckoutController) ResumeOrCreate(ctx echo.Context) error {
	req, err := types.NewPurchaseRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.ResumeOrCreate(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Resume checkout failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.ResumeToProto(result))
}

func (c *CheckoutController) StartCheckout(ctx echo.Context) error {
	req, err := types.NewStartCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.StartCheckout(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Start checkout failed", err)
	}

	return ctx.JSON(http.StatusCreated, mapper.CheckoutToProto(result))
}

func (c *CheckoutController) GetCheckout(ctx echo.Context) error {
	req, ok := c.orderRequest(ctx)
	if !ok {
		return nil
	}

	result, err := c.checkoutService.GetCheckout(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Get checkout failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutToProto(result))
}

func (c *CheckoutController) GenerateCharge(ctx echo.Context) error {
	req, err := types.NewGenerateChargeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.GenerateCharge(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Generate charge failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutToProto(result))
}

func (c *CheckoutController) CancelCheckout(ctx echo.Context) error {
	req, ok := c.orderRequest(ctx)
	if !ok {
		return nil
	}

	result, err := c.checkoutService.Cancel(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Cancel checkout failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutToProto(result))
}

func (c *CheckoutController) ExpirePix(ctx echo.Context) error {
	req, ok := c.orderRequest(ctx)
	if !ok {
		return nil
	}

	result, err := c.checkoutService.ExpirePix(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Expire pix failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutToProto(result))
}

// WatchCheckout streams order updates as server-sent events until the
// checkout reaches a terminal state or the client goes away.
func (c *CheckoutController) WatchCheckout(ctx echo.Context) error {
	req, ok := c.orderRequest(ctx)
	if !ok {
		return nil
	}

	streaming := false
	emit := func(update service.OrderUpdate) {
		if !streaming {
			header := ctx.Response().Header()
			header.Set(echo.HeaderContentType, "text/event-stream")
			header.Set(echo.HeaderCacheControl, "no-cache")
			header.Set(echo.HeaderConnection, "keep-alive")
			ctx.Response().WriteHeader(http.StatusOK)
			streaming = true
		}
		payload, err := json.Marshal(update)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", update.Event, payload)
		ctx.Response().Flush()
	}

	_, err := c.checkoutService.Watch(ctx.Request().Context(), req, emit)
	if err == nil {
		return nil
	}
	if streaming {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Checkout stream ended with error")
		}
		return nil
	}
	return c.writeServiceError(ctx, "Watch checkout failed", err)
}

func (c *CheckoutController) HandleGatewayCallback(ctx echo.Context) error {
	req, err := types.NewGatewayCallbackRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.HandleGatewayCallback(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCallbackRejected), errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			return c.writeServiceError(ctx, "Handle gateway callback failed", err)
		}
	}

	return ctx.JSON(http.StatusOK, mapper.WebhookToProto(result))
}

func (c *CheckoutController) orderRequest(ctx echo.Context) (*types.OrderRequest, bool) {
	req, err := types.NewOrderRequestFromContext(ctx)
	if err != nil {
		_ = c.writeError(ctx, http.StatusBadRequest, "invalid request")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		_ = c.writeError(ctx, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return req, true
}

func (c *CheckoutController) writeServiceError(ctx echo.Context, action string, err error) error {
	code, message := StatusForError(err)
	if code == http.StatusInternalServerError {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(action)
	}
	return c.writeError(ctx, code, message)
}

func (c *CheckoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

// StatusForError maps service errors to an HTTP status and a client-safe
// message.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidPurchase),
		errors.Is(err, service.ErrQuantityBelowMinimum),
		errors.Is(err, service.ErrPlanUnavailable),
		errors.Is(err, service.ErrPaymentMethodUnsupported):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, service.ErrPriceMismatch),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrDowngradeNotAllowed),
		errors.Is(err, service.ErrPlanLimitReached),
		errors.Is(err, service.ErrPendingOrderLimit),
		errors.Is(err, service.ErrCheckoutInProgress),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidStatus):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrChargeDeclined):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusBadGateway, "payment gateway unavailable"
	case errors.Is(err, service.ErrCheckoutUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
