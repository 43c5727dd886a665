package logicv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	platformgrpc "github.com/louisbranch/matchwarden/internal/platform/grpc"
)

// ServiceName is the fully qualified LogicService name used by health checks.
const ServiceName = "logic.v1.LogicService"

// Full method names for LogicService.
const (
	LogicService_RunLogic_FullMethodName     = "/logic.v1.LogicService/RunLogic"
	LogicService_GetInventory_FullMethodName = "/logic.v1.LogicService/GetInventory"
)

// LogicServiceClient is the client API for LogicService.
type LogicServiceClient interface {
	RunLogic(ctx context.Context, in *RunLogicRequest, opts ...grpc.CallOption) (*RunLogicResponse, error)
	GetInventory(ctx context.Context, in *GetInventoryRequest, opts ...grpc.CallOption) (*GetInventoryResponse, error)
}

type logicServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLogicServiceClient returns a client that always selects the JSON codec.
func NewLogicServiceClient(cc grpc.ClientConnInterface) LogicServiceClient {
	return &logicServiceClient{cc: cc}
}

func (c *logicServiceClient) RunLogic(ctx context.Context, in *RunLogicRequest, opts ...grpc.CallOption) (*RunLogicResponse, error) {
	out := new(RunLogicResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(platformgrpc.JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, LogicService_RunLogic_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *logicServiceClient) GetInventory(ctx context.Context, in *GetInventoryRequest, opts ...grpc.CallOption) (*GetInventoryResponse, error) {
	out := new(GetInventoryResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(platformgrpc.JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, LogicService_GetInventory_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// LogicServiceServer is the server API for LogicService.
type LogicServiceServer interface {
	RunLogic(context.Context, *RunLogicRequest) (*RunLogicResponse, error)
	GetInventory(context.Context, *GetInventoryRequest) (*GetInventoryResponse, error)
}

// UnimplementedLogicServiceServer can be embedded for forward compatibility.
type UnimplementedLogicServiceServer struct{}

// RunLogic returns Unimplemented.
func (UnimplementedLogicServiceServer) RunLogic(context.Context, *RunLogicRequest) (*RunLogicResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RunLogic not implemented")
}

// GetInventory returns Unimplemented.
func (UnimplementedLogicServiceServer) GetInventory(context.Context, *GetInventoryRequest) (*GetInventoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetInventory not implemented")
}

// RegisterLogicServiceServer registers srv on s.
func RegisterLogicServiceServer(s grpc.ServiceRegistrar, srv LogicServiceServer) {
	s.RegisterService(&LogicService_ServiceDesc, srv)
}

func _LogicService_RunLogic_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunLogicRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogicServiceServer).RunLogic(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LogicService_RunLogic_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogicServiceServer).RunLogic(ctx, req.(*RunLogicRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LogicService_GetInventory_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInventoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogicServiceServer).GetInventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LogicService_GetInventory_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogicServiceServer).GetInventory(ctx, req.(*GetInventoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LogicService_ServiceDesc is the grpc.ServiceDesc for LogicService.
var LogicService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogicServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RunLogic",
			Handler:    _LogicService_RunLogic_Handler,
		},
		{
			MethodName: "GetInventory",
			Handler:    _LogicService_GetInventory_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "logic/v1/logic.go",
}
