package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/core/service"
)

const serviceName = "inventory.v1.InventoryService"

// JSONCodec carries the service messages as JSON. Clients select it with
// grpc.CallContentSubtype(JSONCodec{}.Name()).
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                               { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []domain.InventoryGroup `json:"groups"`
}

// SaveGroupRequest creates the group when ID is empty and updates it otherwise.
type SaveGroupRequest struct {
	ID             string              `json:"id,omitempty"`
	Payload        domain.GroupPayload `json:"payload"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
}

type SaveGroupResponse struct {
	Group domain.InventoryGroup `json:"group"`
}

type DeleteGroupRequest struct {
	ID string `json:"id"`
}

type ListProductsRequest struct{}

type ListProductsResponse struct {
	Products []domain.Product `json:"products"`
}

type Ack struct {
	Success bool `json:"success"`
}

// InventoryServer is implemented by GRPCHandler.
type InventoryServer interface {
	ListGroups(context.Context, *ListGroupsRequest) (*ListGroupsResponse, error)
	SaveGroup(context.Context, *SaveGroupRequest) (*SaveGroupResponse, error)
	DeleteGroup(context.Context, *DeleteGroupRequest) (*Ack, error)
	LinkProduct(context.Context, *domain.LinkRequest) (*Ack, error)
	UnlinkProduct(context.Context, *domain.UnlinkRequest) (*Ack, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
}

func unaryHandler[Req any, Resp any](method string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InventoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(InventoryServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListGroups", InventoryServer.ListGroups),
		unaryHandler("SaveGroup", InventoryServer.SaveGroup),
		unaryHandler("DeleteGroup", InventoryServer.DeleteGroup),
		unaryHandler("LinkProduct", InventoryServer.LinkProduct),
		unaryHandler("UnlinkProduct", InventoryServer.UnlinkProduct),
		unaryHandler("ListProducts", InventoryServer.ListProducts),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

type GRPCHandler struct {
	inventoryService *service.InventoryService
	logger           *zap.Logger
}

func NewGRPCHandler(inventoryService *service.InventoryService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{inventoryService: inventoryService, logger: logger}
}

func (h *GRPCHandler) ListGroups(ctx context.Context, _ *ListGroupsRequest) (*ListGroupsResponse, error) {
	groups, err := h.inventoryService.ListGroups(ctx, SellerFromContext(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListGroupsResponse{Groups: groups}, nil
}

func (h *GRPCHandler) SaveGroup(ctx context.Context, req *SaveGroupRequest) (*SaveGroupResponse, error) {
	var (
		group *domain.InventoryGroup
		err   error
	)
	if req.ID == "" {
		group, err = h.inventoryService.CreateGroup(ctx, SellerFromContext(ctx), req.Payload, req.IdempotencyKey)
	} else {
		group, err = h.inventoryService.UpdateGroup(ctx, SellerFromContext(ctx), req.ID, req.Payload)
	}
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &SaveGroupResponse{Group: *group}, nil
}

func (h *GRPCHandler) DeleteGroup(ctx context.Context, req *DeleteGroupRequest) (*Ack, error) {
	if err := h.inventoryService.DeleteGroup(ctx, SellerFromContext(ctx), req.ID); err != nil {
		return nil, h.toStatus(err)
	}
	return &Ack{Success: true}, nil
}

func (h *GRPCHandler) LinkProduct(ctx context.Context, req *domain.LinkRequest) (*Ack, error) {
	if req.GroupID == "" || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "variantId and productId are required")
	}
	if err := h.inventoryService.LinkProduct(ctx, SellerFromContext(ctx), req.GroupID, req.ProductID); err != nil {
		return nil, h.toStatus(err)
	}
	return &Ack{Success: true}, nil
}

func (h *GRPCHandler) UnlinkProduct(ctx context.Context, req *domain.UnlinkRequest) (*Ack, error) {
	if req.GroupID == "" {
		return nil, status.Error(codes.InvalidArgument, "variantId is required")
	}
	if err := h.inventoryService.UnlinkProduct(ctx, SellerFromContext(ctx), req.GroupID); err != nil {
		return nil, h.toStatus(err)
	}
	return &Ack{Success: true}, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, _ *ListProductsRequest) (*ListProductsResponse, error) {
	products, err := h.inventoryService.ListProducts(ctx, SellerFromContext(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListProductsResponse{Products: products}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, service.ErrGroupNotFound), errors.Is(err, service.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrProductAlreadyLinked), errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrVersionConflict), errors.Is(err, service.ErrProductBusy):
		return status.Error(codes.Aborted, err.Error())
	default:
		h.logger.Error("grpc call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// AuthInterceptor validates the "authorization" metadata entry and stores
// the seller on the context.
func AuthInterceptor(auth *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingToken.Error())
		}
		sellerID, err := auth.Authenticate(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return handler(WithSeller(ctx, sellerID), req)
	}
}

// InventoryClient calls InventoryService over a connection that uses JSONCodec.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodec{}.Name())}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

func (c *InventoryClient) ListGroups(ctx context.Context, opts ...grpc.CallOption) (*ListGroupsResponse, error) {
	out := new(ListGroupsResponse)
	if err := c.invoke(ctx, "ListGroups", &ListGroupsRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) SaveGroup(ctx context.Context, in *SaveGroupRequest, opts ...grpc.CallOption) (*SaveGroupResponse, error) {
	out := new(SaveGroupResponse)
	if err := c.invoke(ctx, "SaveGroup", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) DeleteGroup(ctx context.Context, in *DeleteGroupRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "DeleteGroup", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) LinkProduct(ctx context.Context, in *domain.LinkRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "LinkProduct", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) UnlinkProduct(ctx context.Context, in *domain.UnlinkRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "UnlinkProduct", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) ListProducts(ctx context.Context, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	if err := c.invoke(ctx, "ListProducts", &ListProductsRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
