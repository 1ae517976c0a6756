// Package rpc defines the master->worker Dispatch service. Messages are
// protobuf well-known Struct and Value types, so no generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "ddpdispatch.Worker"
	DispatchFullMethod = "/" + ServiceName + "/Dispatch"
)

// WorkerServer is the server API for the Worker service.
type WorkerServer interface {
	Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// WorkerClient is the client API for the Worker service.
type WorkerClient interface {
	Dispatch(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
}

type workerClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerClient returns a client for the Worker service over cc.
func NewWorkerClient(cc grpc.ClientConnInterface) WorkerClient {
	return &workerClient{cc: cc}
}

func (c *workerClient) Dispatch(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, DispatchFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterWorkerServer registers srv on s.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DispatchFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Dispatch",
			Handler:    dispatchHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ddpdispatch/worker",
}
