package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "checkout.CheckoutService"

type checkoutService interface {
	ResolveProduct(ctx context.Context, req service.PurchaseInput) (*service.ResolvedProduct, error)
	ResumeOrCreate(ctx context.Context, req service.PurchaseInput) (*service.ResumeResult, error)
	StartCheckout(ctx context.Context, req service.StartCheckoutInput) (*service.CheckoutResult, error)
	GetCheckout(ctx context.Context, req service.OrderInput) (*service.CheckoutResult, error)
	GenerateCharge(ctx context.Context, req service.ChargeInput) (*service.CheckoutResult, error)
	Cancel(ctx context.Context, req service.OrderInput) (*service.CheckoutResult, error)
}

// Server exposes the checkout operations over gRPC. Messages travel as
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type Server struct {
	checkoutService checkoutService
}

func NewServer(checkoutService checkoutService) *Server {
	return &Server{checkoutService: checkoutService}
}

func (s *Server) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(&types.HealthResponse{Status: "ok"})
}

func (s *Server) ResolveProduct(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.PurchaseRequest{}
	if err := fromStruct(in, req); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		loggerWithContext(ctx).WithError(err).Debug("Resolve product validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	product, err := s.checkoutService.ResolveProduct(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Resolve product failed", err)
	}
	return toStruct(&types.ProductResponse{Product: mapper.ProductToProto(product)})
}

func (s *Server) ResumeOrCreate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.PurchaseRequest{}
	if err := fromStruct(in, req); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.checkoutService.ResumeOrCreate(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Resume checkout failed", err)
	}
	return toStruct(mapper.ResumeToProto(result))
}

func (s *Server) StartCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.StartCheckoutRequest{}
	if err := fromStruct(in, req); err != nil {
		return nil, err
	}
	req.PurchaseRequest.Normalize()
	req.PaymentDetails.Normalize()
	if err := req.Validate(); err != nil {
		loggerWithContext(ctx).WithError(err).Debug("Start checkout validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.checkoutService.StartCheckout(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Start checkout failed", err)
	}
	return toStruct(mapper.CheckoutToProto(result))
}

func (s *Server) GetCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := orderRequest(in)
	if err != nil {
		return nil, err
	}

	result, err := s.checkoutService.GetCheckout(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Get checkout failed", err)
	}
	return toStruct(mapper.CheckoutToProto(result))
}

func (s *Server) GenerateCharge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.GenerateChargeRequest{}
	if err := fromStruct(in, req); err != nil {
		return nil, err
	}
	req.OrderRequest.Normalize()
	req.PaymentDetails.Normalize()
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.checkoutService.GenerateCharge(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Generate charge failed", err)
	}
	return toStruct(mapper.CheckoutToProto(result))
}

func (s *Server) CancelCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := orderRequest(in)
	if err != nil {
		return nil, err
	}

	result, err := s.checkoutService.Cancel(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "Cancel checkout failed", err)
	}
	return toStruct(mapper.CheckoutToProto(result))
}

func (s *Server) statusError(ctx context.Context, action string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidPurchase),
		errors.Is(err, service.ErrQuantityBelowMinimum),
		errors.Is(err, service.ErrPlanUnavailable),
		errors.Is(err, service.ErrPaymentMethodUnsupported):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		return status.Error(codes.NotFound, "order not found")
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrPlanLimitReached),
		errors.Is(err, service.ErrPendingOrderLimit):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, service.ErrCheckoutInProgress):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrPriceMismatch),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrDowngradeNotAllowed),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrChargeDeclined):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable), errors.Is(err, service.ErrCheckoutUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(action)
		return status.Error(codes.Internal, "internal server error")
	}
}

func orderRequest(in *structpb.Struct) (*types.OrderRequest, error) {
	req := &types.OrderRequest{}
	if err := fromStruct(in, req); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return req, nil
}

func fromStruct(in *structpb.Struct, dst interface{}) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

func toStruct(src interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

// CheckoutServiceServer is implemented by Server.
type CheckoutServiceServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeOrCreate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateCharge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterCheckoutServiceServer(registrar grpc.ServiceRegistrar, srv CheckoutServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

type structMethod func(CheckoutServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CheckoutServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CheckoutServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CheckoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Health", CheckoutServiceServer.Health),
		unaryHandler("ResolveProduct", CheckoutServiceServer.ResolveProduct),
		unaryHandler("ResumeOrCreate", CheckoutServiceServer.ResumeOrCreate),
		unaryHandler("StartCheckout", CheckoutServiceServer.StartCheckout),
		unaryHandler("GetCheckout", CheckoutServiceServer.GetCheckout),
		unaryHandler("GenerateCharge", CheckoutServiceServer.GenerateCharge),
		unaryHandler("CancelCheckout", CheckoutServiceServer.CancelCheckout),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout.proto",
}

// CheckoutServiceClient calls a remote CheckoutService.
type CheckoutServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutServiceClient(cc grpc.ClientConnInterface) *CheckoutServiceClient {
	return &CheckoutServiceClient{cc: cc}
}

func (c *CheckoutServiceClient) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
