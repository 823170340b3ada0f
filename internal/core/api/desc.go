package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names of the plumbing service. Messages are
// google.protobuf.Struct, so no generated code is needed on either side.
const (
	ServiceName     = "mario.plumber.v1.Plumber"
	PlumbMethod     = "/" + ServiceName + "/Plumb"
	ListRulesMethod = "/" + ServiceName + "/ListRules"
)

// PlumberServer is the server API of the plumbing service.
type PlumberServer interface {
	Plumb(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the plumbing service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlumberServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Plumb", Handler: plumbHandler},
		{MethodName: "ListRules", Handler: listRulesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mario/plumber/v1/plumber.proto",
}

// RegisterPlumberServer registers srv on s.
func RegisterPlumberServer(s grpc.ServiceRegistrar, srv PlumberServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func plumbHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlumberServer).Plumb(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlumbMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlumberServer).Plumb(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listRulesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlumberServer).ListRules(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListRulesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlumberServer).ListRules(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PlumberClient calls the plumbing service.
type PlumberClient struct {
	cc grpc.ClientConnInterface
}

// NewPlumberClient wraps a client connection.
func NewPlumberClient(cc grpc.ClientConnInterface) *PlumberClient {
	return &PlumberClient{cc: cc}
}

// Plumb sends one message.
func (c *PlumberClient) Plumb(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PlumbMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRules fetches the server's rules.
func (c *PlumberClient) ListRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListRulesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
