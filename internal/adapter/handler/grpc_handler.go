package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/service"
)

const (
	OrderServiceName = "coffeeshop.order.v1.OrderService"

	createOrderMethod  = "/" + OrderServiceName + "/CreateOrder"
	updateStatusMethod = "/" + OrderServiceName + "/UpdateOrderStatus"
)

// JSONCodecName is the content-subtype clients pass with grpc.CallContentSubtype.
const JSONCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// OrderServiceServer is the gRPC surface of the order use cases.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateStatusRequest) (*StatusResponse, error)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: createOrderHandler},
		{MethodName: "UpdateOrderStatus", Handler: updateStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coffeeshop/order/v1/order.json",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func createOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: createOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: updateStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, req.(*UpdateStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// OrderServiceClient calls a remote OrderService over the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	out := new(CreateOrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, createOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, updateStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCHandler reports business failures in the response body rather than as
// gRPC status errors.
type GRPCHandler struct {
	orderService OrderService
	logger       *slog.Logger
}

func NewGRPCHandler(orderService OrderService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	id, err := h.orderService.CreateOrder(ctx, service.CreateOrderCommand{
		UserID: req.UserID,
		Items:  req.items(),
	})
	if err != nil {
		return &CreateOrderResponse{
			Success: false,
			Message: h.failure(ctx, "CreateOrder", err),
			Error:   domain.KindOf(err).String(),
		}, nil
	}
	return &CreateOrderResponse{
		Success: true,
		Message: "order created",
		OrderID: id.String(),
	}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateStatusRequest) (*StatusResponse, error) {
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		return &StatusResponse{Message: "invalid order id", Error: domain.KindValidation.String()}, nil
	}
	status, err := domain.ParseOrderStatus(req.NewStatus)
	if err != nil {
		return &StatusResponse{Message: err.Error(), Error: domain.KindValidation.String()}, nil
	}

	if err := h.orderService.UpdateOrderStatus(ctx, id, status); err != nil {
		return &StatusResponse{
			Message: h.failure(ctx, "UpdateOrderStatus", err),
			Error:   domain.KindOf(err).String(),
		}, nil
	}
	return &StatusResponse{Success: true, Message: "order status updated to " + string(status)}, nil
}

func (h *GRPCHandler) failure(ctx context.Context, method string, err error) string {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindNotFound, domain.KindBusinessRule:
		return err.Error()
	default:
		h.logger.ErrorContext(ctx, "grpc request failed", "method", method, "error", err)
		return "internal error"
	}
}
